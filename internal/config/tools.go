package config

import (
	"fmt"
	"strings"
)

// Command is an external tool invocation template.
// Args may contain {name} placeholders that are replaced at run time.
type Command struct {
	Binary string   `yaml:"binary"`
	Args   []string `yaml:"args,omitempty"`
}

// Expand returns the argument vector with every {name} placeholder replaced
// by vars[name]. Unknown placeholders are left as they are.
func (c Command) Expand(vars map[string]string) []string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = r.Replace(a)
	}
	return args
}

// JFrogConfig configures the artifact repository CLI.
type JFrogConfig struct {
	Binary string `yaml:"binary"`

	// RepositoryPattern is the search root; the SPK is appended as a directory.
	RepositoryPattern string `yaml:"repositoryPattern"`

	// ExtraArgs are appended to every invocation (for example --server-id).
	ExtraArgs []string `yaml:"extraArgs,omitempty"`
}

// MTAConfig configures the migration analyzer.
type MTAConfig struct {
	Binary   string   `yaml:"binary"`
	Targets  []string `yaml:"targets"`
	Packages []string `yaml:"packages"`

	// ReportFile is the CSV the analyzer writes into its output directory.
	ReportFile string `yaml:"reportFile"`
}

// DotNetConfig configures the compiled-binary track.
//
// Fetch placeholders: {spk}, {workUnitId}, {dest}.
// Analyze placeholders: {spk}, {workUnitId}, {input}, {output}.
type DotNetConfig struct {
	Fetch      Command `yaml:"fetch"`
	Analyze    Command `yaml:"analyze"`
	ReportFile string  `yaml:"reportFile"`
}

// ToolsConfig groups every external tool the stages invoke.
type ToolsConfig struct {
	JFrog  JFrogConfig  `yaml:"jfrog"`
	MTA    MTAConfig    `yaml:"mta"`
	DotNet DotNetConfig `yaml:"dotnet"`
}

// defaultTools returns the tool settings used when the config file is silent.
func defaultTools() ToolsConfig {
	return ToolsConfig{
		JFrog: JFrogConfig{
			Binary:            DefaultJFrogBinary,
			RepositoryPattern: DefaultRepositoryPattern,
		},
		MTA: MTAConfig{
			Binary:     DefaultMTABinary,
			Targets:    []string{"eap:7", "cloud-readiness"},
			Packages:   []string{"com.boa", "com.bofa", "com.baml", "com.bankofamerica"},
			ReportFile: DefaultMTAReport,
		},
		DotNet: DotNetConfig{
			Fetch: Command{
				Binary: "git",
				Args:   []string{"clone", "--depth", "1", "https://scm.local/{workUnitId}/{spk}.git", "{dest}"},
			},
			Analyze: Command{
				Binary: "csa",
				Args:   []string{"--input", "{input}", "--output", "{output}", "--format", "csv"},
			},
			ReportFile: DefaultDotNetReport,
		},
	}
}

// validate checks that every tool has an executable.
func (t ToolsConfig) validate() error {
	binaries := map[string]string{
		"jfrog":          t.JFrog.Binary,
		"mta":            t.MTA.Binary,
		"dotnet.fetch":   t.DotNet.Fetch.Binary,
		"dotnet.analyze": t.DotNet.Analyze.Binary,
	}
	for name, bin := range binaries {
		if strings.TrimSpace(bin) == "" {
			return fmt.Errorf("%w: %s", ErrMissingToolBinary, name)
		}
	}
	return nil
}
