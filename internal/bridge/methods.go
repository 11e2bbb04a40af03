package bridge

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// Method names a view → host handler. Only the methods below exist; a
// Binding can only be built through their constructors, so a handler's
// name and shape are fixed at compile time.
type Method string

const (
	MethodOnReady               Method = "onReady"
	MethodOpenInBrowser         Method = "openInBrowser"
	MethodUploadDroppedFiles    Method = "uploadDroppedFiles"
	MethodFilterSelected        Method = "filterSelected"
	MethodGetAuthURL            Method = "getAuthUrl"
	MethodSetAuthURL            Method = "setAuthUrl"
	MethodTestAuthorization     Method = "testAuthorization"
	MethodAuthorizationComplete Method = "authorizationComplete"
	MethodAnalytics             Method = "analytics"
	MethodResizePanel           Method = "resizePanel"
	MethodViewIssue             Method = "viewIssue"
	MethodDeleteAttachment      Method = "deleteAttachment"
	MethodOpenAttachment        Method = "openAttachment"
)

var knownMethods = map[Method]bool{
	MethodOnReady:               true,
	MethodOpenInBrowser:         true,
	MethodUploadDroppedFiles:    true,
	MethodFilterSelected:        true,
	MethodGetAuthURL:            true,
	MethodSetAuthURL:            true,
	MethodTestAuthorization:     true,
	MethodAuthorizationComplete: true,
	MethodAnalytics:             true,
	MethodResizePanel:           true,
	MethodViewIssue:             true,
	MethodDeleteAttachment:      true,
	MethodOpenAttachment:        true,
}

// Known reports whether m is part of the method catalog.
func (m Method) Known() bool {
	return knownMethods[m]
}

// Args are the raw JSON arguments of an invocation. Missing trailing
// arguments decode to their zero value.
type Args []json.RawMessage

func (a Args) decode(i int, v any) error {
	if i >= len(a) || len(a[i]) == 0 || string(a[i]) == "null" {
		return nil
	}
	if err := json.Unmarshal(a[i], v); err != nil {
		return fmt.Errorf("argument %d: %w", i, err)
	}
	return nil
}

// Handler is the untyped form every Binding reduces to.
type Handler func(ctx context.Context, args Args) (any, error)

// Binding pairs a catalog method with its handler.
type Binding struct {
	method  Method
	handler Handler
}

// Method returns the bound method name.
func (b Binding) Method() Method { return b.method }

func bind0(m Method, fn func(context.Context) (any, error)) Binding {
	return Binding{method: m, handler: func(ctx context.Context, _ Args) (any, error) {
		return fn(ctx)
	}}
}

func bind1[A any](m Method, fn func(context.Context, A) (any, error)) Binding {
	return Binding{method: m, handler: func(ctx context.Context, args Args) (any, error) {
		var a A
		if err := args.decode(0, &a); err != nil {
			return nil, err
		}
		return fn(ctx, a)
	}}
}

func bind2[A, B any](m Method, fn func(context.Context, A, B) (any, error)) Binding {
	return Binding{method: m, handler: func(ctx context.Context, args Args) (any, error) {
		var a A
		var b B
		if err := args.decode(0, &a); err != nil {
			return nil, err
		}
		if err := args.decode(1, &b); err != nil {
			return nil, err
		}
		return fn(ctx, a, b)
	}}
}

func bind3[A, B, C any](m Method, fn func(context.Context, A, B, C) (any, error)) Binding {
	return Binding{method: m, handler: func(ctx context.Context, args Args) (any, error) {
		var a A
		var b B
		var c C
		if err := args.decode(0, &a); err != nil {
			return nil, err
		}
		if err := args.decode(1, &b); err != nil {
			return nil, err
		}
		if err := args.decode(2, &c); err != nil {
			return nil, err
		}
		return fn(ctx, a, b, c)
	}}
}

func bind4[A, B, C, D any](m Method, fn func(context.Context, A, B, C, D) (any, error)) Binding {
	return Binding{method: m, handler: func(ctx context.Context, args Args) (any, error) {
		var a A
		var b B
		var c C
		var d D
		if err := args.decode(0, &a); err != nil {
			return nil, err
		}
		if err := args.decode(1, &b); err != nil {
			return nil, err
		}
		if err := args.decode(2, &c); err != nil {
			return nil, err
		}
		if err := args.decode(3, &d); err != nil {
			return nil, err
		}
		return fn(ctx, a, b, c, d)
	}}
}

func noResult(err error) (any, error) { return nil, err }

// OnReady is called by the view once its own model is initialized.
func OnReady(fn func(ctx context.Context) error) Binding {
	return bind0(MethodOnReady, func(ctx context.Context) (any, error) {
		return noResult(fn(ctx))
	})
}

func OpenInBrowser(fn func(ctx context.Context, url string) error) Binding {
	return bind1(MethodOpenInBrowser, func(ctx context.Context, url string) (any, error) {
		return noResult(fn(ctx, url))
	})
}

// UploadDroppedFiles asks the host to upload whatever the user dragged onto
// the issue.
func UploadDroppedFiles(fn func(ctx context.Context, issueKey string) error) Binding {
	return bind1(MethodUploadDroppedFiles, func(ctx context.Context, issueKey string) (any, error) {
		return noResult(fn(ctx, issueKey))
	})
}

func FilterSelected(fn func(ctx context.Context, filterKey string) error) Binding {
	return bind1(MethodFilterSelected, func(ctx context.Context, filterKey string) (any, error) {
		return noResult(fn(ctx, filterKey))
	})
}

func GetAuthURL(fn func(ctx context.Context) (string, error)) Binding {
	return bind0(MethodGetAuthURL, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
}

func SetAuthURL(fn func(ctx context.Context, url string) error) Binding {
	return bind1(MethodSetAuthURL, func(ctx context.Context, url string) (any, error) {
		return noResult(fn(ctx, url))
	})
}

func TestAuthorization(fn func(ctx context.Context) (bool, error)) Binding {
	return bind0(MethodTestAuthorization, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
}

func AuthorizationComplete(fn func(ctx context.Context) error) Binding {
	return bind0(MethodAuthorizationComplete, func(ctx context.Context) (any, error) {
		return noResult(fn(ctx))
	})
}

func Analytics(fn func(ctx context.Context, eventName string, properties map[string]any) error) Binding {
	return bind2(MethodAnalytics, func(ctx context.Context, name string, props map[string]any) (any, error) {
		return noResult(fn(ctx, name, props))
	})
}

func ResizePanel(fn func(ctx context.Context, width, height int, animate bool) error) Binding {
	return bind3(MethodResizePanel, func(ctx context.Context, w, h int, animate bool) (any, error) {
		return noResult(fn(ctx, w, h, animate))
	})
}

// ViewIssue marks the issue as viewed and reloads its attachments.
func ViewIssue(fn func(ctx context.Context, issueKey string) error) Binding {
	return bind1(MethodViewIssue, func(ctx context.Context, issueKey string) (any, error) {
		return noResult(fn(ctx, issueKey))
	})
}

func DeleteAttachment(fn func(ctx context.Context, issueKey, attachmentID string, isReplace bool) error) Binding {
	return bind3(MethodDeleteAttachment, func(ctx context.Context, issueKey, id string, isReplace bool) (any, error) {
		return noResult(fn(ctx, issueKey, id, isReplace))
	})
}

func OpenAttachment(fn func(ctx context.Context, issueKey, attachmentID, url, filename string) error) Binding {
	return bind4(MethodOpenAttachment, func(ctx context.Context, issueKey, id, url, filename string) (any, error) {
		return noResult(fn(ctx, issueKey, id, url, filename))
	})
}
