// Package pipeline runs technology specific stage lists.
//
// A Registry maps each technology to an ordered list of stages and is built
// once at startup. The Executor folds over that list: every stage receives
// the previous stage's output and a failure ends the run. Stages registered
// with a StageRecorder write their STARTED, COMPLETED and ERROR boundaries
// without any code in the stage bodies.
package pipeline
