package service

import (
	"context"

	"github.com/layer-3/esrlink/core"
	"github.com/layer-3/esrlink/ports"
)

// transportHooks holds the optional capabilities of a transport, nil when not implemented
type transportHooks struct {
	transport ports.Transport

	onSuccess          func(core.SigningRequest, *core.TransactResult)
	onFailure          func(core.SigningRequest, error)
	onSessionRequest   func(context.Context, ports.SessionDescriptor, core.SigningRequest, ports.CancelFunc)
	prepare            func(context.Context, core.SigningRequest, ports.SessionDescriptor) (core.SigningRequest, error)
	showLoading        func()
	userAgent          func() string
	sendSessionPayload func([]byte, ports.SessionDescriptor) bool
	recoverError       func(error, core.SigningRequest) bool
	storage            func() ports.Storage
}

func resolveHooks(t ports.Transport) transportHooks {
	h := transportHooks{transport: t}
	if v, ok := t.(ports.SuccessObserver); ok {
		h.onSuccess = v.OnSuccess
	}
	if v, ok := t.(ports.FailureObserver); ok {
		h.onFailure = v.OnFailure
	}
	if v, ok := t.(ports.SessionRequestHandler); ok {
		h.onSessionRequest = v.OnSessionRequest
	}
	if v, ok := t.(ports.Preparer); ok {
		h.prepare = v.Prepare
	}
	if v, ok := t.(ports.LoadingIndicator); ok {
		h.showLoading = v.ShowLoading
	}
	if v, ok := t.(ports.UserAgentProvider); ok {
		h.userAgent = v.UserAgent
	}
	if v, ok := t.(ports.SessionPayloadSender); ok {
		h.sendSessionPayload = v.SendSessionPayload
	}
	if v, ok := t.(ports.ErrorRecoverer); ok {
		h.recoverError = v.RecoverError
	}
	if v, ok := t.(ports.StorageProvider); ok {
		h.storage = v.Storage
	}
	return h
}

// notifySuccess runs the success observer. A panicking observer is logged and ignored.
func (l *Link) notifySuccess(h transportHooks, request core.SigningRequest, result *core.TransactResult) {
	if h.onSuccess == nil {
		return
	}
	defer l.recoverObserver("OnSuccess")
	h.onSuccess(request, result)
}

// notifyFailure runs the failure observer. A panicking observer is logged and ignored.
func (l *Link) notifyFailure(h transportHooks, request core.SigningRequest, err error) {
	if h.onFailure == nil {
		return
	}
	defer l.recoverObserver("OnFailure")
	h.onFailure(request, err)
}

func (l *Link) recoverObserver(name string) {
	if r := recover(); r != nil {
		l.logger.Warn().Interface("panic", r).Str("hook", name).Msg("transport observer panicked")
	}
}
