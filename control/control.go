// Package control exposes a graphic.API to remote hosts.
//
// Requests and responses are JSON envelopes:
//
//	{"id": "42", "action": "updateAction", "params": {"data": {"title": "Hi"}}}
//	{"id": "42", "action": "updateAction", "result": {"statusCode": 200}}
//
// Dispatcher decodes and routes envelopes. Bridge carries them over MQTT.
package control

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/rive-ograf/errors"
	"github.com/wippyai/rive-ograf/graphic"
)

// Actions of the control protocol.
const (
	ActionLoad               = "load"
	ActionDispose            = "dispose"
	ActionUpdate             = "updateAction"
	ActionPlay               = "playAction"
	ActionStop               = "stopAction"
	ActionCustom             = "customAction"
	ActionGoToTime           = "goToTime"
	ActionSetActionsSchedule = "setActionsSchedule"
)

// Request is one control call.
type Request struct {
	ID     string          `json:"id"`
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers the Request with the same ID. Error carries the message
// of operations that fail outright, such as non-realtime calls.
type Response struct {
	ID     string         `json:"id"`
	Action string         `json:"action"`
	Error  string         `json:"error,omitempty"`
	Result graphic.Result `json:"result"`
}

type handler func(ctx context.Context, api graphic.API, params json.RawMessage) (graphic.Result, error)

// call decodes params into P and invokes op.
func call[P any](op func(graphic.API, context.Context, P) (graphic.Result, error)) handler {
	return func(ctx context.Context, api graphic.API, params json.RawMessage) (graphic.Result, error) {
		var p P
		if len(params) > 0 && string(params) != "null" {
			if err := json.Unmarshal(params, &p); err != nil {
				return graphic.Result{}, errors.InvalidData(errors.PhaseControl, "decode params", err)
			}
		}
		return op(api, ctx, p)
	}
}

var handlers = map[string]handler{
	ActionLoad:               call(graphic.API.Load),
	ActionDispose:            call(graphic.API.Dispose),
	ActionUpdate:             call(graphic.API.UpdateAction),
	ActionPlay:               call(graphic.API.PlayAction),
	ActionStop:               call(graphic.API.StopAction),
	ActionCustom:             call(graphic.API.CustomAction),
	ActionGoToTime:           call(graphic.API.GoToTime),
	ActionSetActionsSchedule: call(graphic.API.SetActionsSchedule),
}

// Dispatcher routes requests to a graphic.
type Dispatcher struct {
	api graphic.API
}

func NewDispatcher(api graphic.API) *Dispatcher {
	return &Dispatcher{api: api}
}

// Dispatch runs req. Malformed requests and unknown actions get a 400
// result.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID, Action: req.Action}

	h, ok := handlers[req.Action]
	if !ok {
		err := errors.New(errors.PhaseControl, errors.KindUnsupported).
			Value(req.Action).
			Detail("unknown action %q", req.Action).
			Build()
		resp.Result = graphic.Result{StatusCode: errors.StatusUnsupported, Message: err.Message()}
		resp.Error = err.Message()
		return resp
	}

	res, err := h(ctx, d.api, req.Params)
	if err != nil {
		if res.StatusCode == 0 {
			res = graphic.Result{StatusCode: errors.StatusUnsupported, Message: errors.Message(err)}
		}
		resp.Error = errors.Message(err)
	}
	resp.Result = res
	return resp
}

// Handle decodes a request payload, dispatches it and encodes the response.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte) []byte {
	var req Request
	var resp Response
	if err := json.Unmarshal(payload, &req); err != nil {
		msg := errors.InvalidData(errors.PhaseControl, "malformed request", err).Message()
		resp = Response{
			Result: graphic.Result{StatusCode: errors.StatusUnsupported, Message: msg},
			Error:  msg,
		}
	} else {
		resp = d.Dispatch(ctx, req)
	}

	Logger().Debug("control request",
		zap.String("id", resp.ID),
		zap.String("action", resp.Action),
		zap.Int("status", resp.Result.StatusCode))

	out, err := json.Marshal(resp)
	if err != nil {
		Logger().Error("encode control response", zap.Error(err))
		return []byte(fmt.Sprintf(`{"id":%q,"action":%q,"result":{"statusCode":500},"error":%q}`, resp.ID, resp.Action, err.Error()))
	}
	return out
}
