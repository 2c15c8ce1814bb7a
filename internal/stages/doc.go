// Package stages holds the concrete stages of both technology tracks.
//
// JAVA: SEARCH ARTIFACT, DOWNLOAD ARTIFACT, MTA SCAN, optional ARCHIVE
// REPORT, LOAD MTA RESULT. DOTNET: DOWNLOAD CODE, CSA SCAN, optional
// ARCHIVE REPORT, LOAD CSA RESULT.
//
// Stages that work per artifact fan out over the shared pool and correlate
// results by item key. Status boundaries are written by the registry's
// tracking wrapper, not here; stages only write per-artifact detail rows.
package stages
