package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-durable/wire"
)

// The sample worker speaks the same base64 wire protocol an out-of-process
// worker does: Sum schedules Add with its input and completes with the
// activity result.
const (
	sumOrchestrator = "Sum"
	addActivity     = "Add"
)

func registerSampleWorker(functions *durable.FunctionRegistry) error {
	if err := functions.RegisterOrchestrator(sumOrchestrator, durable.ExecutorFunc(sumTurn)); err != nil {
		return err
	}
	return functions.RegisterActivity(addActivity, durable.ExecutorFunc(addNumbers))
}

func sumTurn(_ context.Context, trigger string) (any, error) {
	var req wire.OrchestratorRequest
	if err := wire.DecodeBase64(trigger, &req); err != nil {
		return nil, err
	}
	past, err := wire.HistoryFromWire(req.PastEvents)
	if err != nil {
		return nil, err
	}
	next, err := wire.HistoryFromWire(req.NewEvents)
	if err != nil {
		return nil, err
	}

	var input *string
	for _, e := range append(past, next...) {
		if e.ExecutionStarted != nil {
			input = e.ExecutionStarted.Input
		}
	}

	result := &durable.OrchestratorExecutionResult{
		Actions: []durable.OrchestratorAction{{
			ID:           1,
			ScheduleTask: &durable.ScheduleTaskAction{Name: addActivity, Input: input},
		}},
	}
	for _, e := range next {
		switch {
		case e.TaskCompleted != nil:
			result = complete(durable.StatusCompleted, e.TaskCompleted.Result, nil)
		case e.TaskFailed != nil:
			result = complete(durable.StatusFailed, nil, e.TaskFailed.FailureDetails)
		}
	}

	resp, err := wire.NewOrchestratorResponse(req.InstanceID, result)
	if err != nil {
		return nil, err
	}
	return wire.EncodeBase64(resp)
}

func complete(status durable.OrchestrationStatus, output *string, failure *durable.FailureDetails) *durable.OrchestratorExecutionResult {
	return &durable.OrchestratorExecutionResult{
		Actions: []durable.OrchestratorAction{{
			ID: 2,
			CompleteOrchestration: &durable.CompleteOrchestrationAction{
				Status:         status,
				Result:         output,
				FailureDetails: failure,
			},
		}},
	}
}

func addNumbers(_ context.Context, trigger string) (any, error) {
	var req wire.ActivityRequest
	if err := wire.DecodeBase64(trigger, &req); err != nil {
		return nil, err
	}
	resp := &wire.ActivityResponse{
		InstanceID: req.OrchestrationInstance.InstanceID,
		TaskID:     req.TaskID,
	}

	var numbers []float64
	if req.Input == nil || json.Unmarshal([]byte(*req.Input), &numbers) != nil {
		resp.FailureDetails = &wire.TaskFailureDetails{
			ErrorType:      "ArgumentException",
			ErrorMessage:   fmt.Sprintf("%s expects a JSON array of numbers", addActivity),
			IsNonRetriable: true,
		}
		return wire.EncodeBase64(resp)
	}

	total := 0.0
	for _, n := range numbers {
		total += n
	}
	sum := strconv.FormatFloat(total, 'f', -1, 64)
	resp.Result = &sum
	return wire.EncodeBase64(resp)
}
