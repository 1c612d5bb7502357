// Package workflow defines the saga building blocks: steps, typed workflow
// definitions, the accumulated results view, outcomes, and the definition
// registry.
//
// A workflow is an ordered list of [Step] values plus three derivation
// functions: one building audit events from the accumulated results, one
// building notification payloads, and one projecting the final output.
//
// # Defining a Workflow
//
//	var def = &workflow.Definition[Input, Output]{
//	    Name: "example",
//	    Steps: []workflow.Step[Input]{
//	        {
//	            Name: "reserve",
//	            Execute: func(ctx context.Context, ec saga.ExecutionContext, in Input, prior workflow.Results) saga.Result[any] {
//	                return saga.Ok[any](reserve(ctx, in))
//	            },
//	            Rollback: func(ctx context.Context, ec saga.ExecutionContext, in Input, produced any) error {
//	                return release(ctx, produced)
//	            },
//	        },
//	        {Name: "record_metrics", Optional: true, Execute: recordMetrics},
//	    },
//	    BuildOutput: buildOutput,
//	}
//
// Required steps abort the run on failure and trigger compensation of
// already-committed steps in reverse order. Optional steps are skipped over
// on failure and reported in the outcome's FailedSteps.
//
// # Step Ordering Invariant
//
// A step with no Rollback that already committed an external side effect is
// never undone. Order irreversible required mutations last, after all steps
// whose failure would otherwise strand them; [Definition.Warnings] flags
// definitions where an optional rollback-less step precedes a required one.
package workflow
