package http

import (
	"golang.org/x/net/context"

	"github.com/gatekeeperhq/gatekeeper/core"
)

const (
	ctxKeyDeviceID  = "deviceID"
	ctxKeyNamespace = "namespace"
	ctxKeyRoute     = "route"
	ctxKeyToken     = "token"
	ctxKeyTokenType = "tokenType"
	ctxKeyUserID    = "userID"
	ctxKeyVersion   = "version"

	tokenApplication = "application"
	tokenBackend     = "backend"
)

func deviceIDFromContext(ctx context.Context) string {
	return ctx.Value(ctxKeyDeviceID).(string)
}

func deviceIDInContext(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, ctxKeyDeviceID, deviceID)
}

func namespaceFromContext(ctx context.Context) string {
	return ctx.Value(ctxKeyNamespace).(string)
}

func namespaceInContext(ctx context.Context, namespace string) context.Context {
	return context.WithValue(ctx, ctxKeyNamespace, namespace)
}

func originFromContext(ctx context.Context) core.Origin {
	var (
		deviceID  = deviceIDFromContext(ctx)
		tokenType = tokenTypeFromContext(ctx)
		userID    = userIDFromContext(ctx)
	)

	return createOrigin(deviceID, tokenType, userID)
}

func routeFromContext(ctx context.Context) string {
	return ctx.Value(ctxKeyRoute).(string)
}

func routeInContext(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, ctxKeyRoute, route)
}

func tokenFromContext(ctx context.Context) string {
	return ctx.Value(ctxKeyToken).(string)
}

func tokenInContext(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxKeyToken, token)
}

func tokenTypeFromContext(ctx context.Context) string {
	return ctx.Value(ctxKeyTokenType).(string)
}

func tokenTypeInContext(ctx context.Context, tokenType string) context.Context {
	return context.WithValue(ctx, ctxKeyTokenType, tokenType)
}

func userIDFromContext(ctx context.Context) uint64 {
	return ctx.Value(ctxKeyUserID).(uint64)
}

func userIDInContext(ctx context.Context, userID uint64) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, userID)
}

func versionFromContext(ctx context.Context) string {
	return ctx.Value(ctxKeyVersion).(string)
}

func versionInContext(ctx context.Context, version string) context.Context {
	return context.WithValue(ctx, ctxKeyVersion, version)
}
