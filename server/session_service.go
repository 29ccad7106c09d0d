package server

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"connectrpc.com/connect"

	"github.com/ici-language/ici-sub000/compiler"
	"github.com/ici-language/ici-sub000/vm"
)

// SessionService manages sessions, handles and name completion.
type SessionService struct {
	worker   *VMWorker
	sessions *SessionStore
	handles  *HandleStore
}

// NewSessionService creates a SessionService.
func NewSessionService(worker *VMWorker, sessions *SessionStore, handles *HandleStore) *SessionService {
	return &SessionService{
		worker:   worker,
		sessions: sessions,
		handles:  handles,
	}
}

// CreateSession creates a new workspace session.
func (s *SessionService) CreateSession(
	ctx context.Context,
	req *connect.Request[CreateSessionRequest],
) (*connect.Response[CreateSessionResponse], error) {
	result, err := s.worker.Do(func(v *vm.VM) interface{} {
		return s.sessions.Create(v, req.Msg.Name)
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	session := result.(*Session)
	log.Debugf("created session %s", session.ID)
	return connect.NewResponse(&CreateSessionResponse{SessionID: session.ID}), nil
}

// DestroySession destroys a session and releases its handles.
func (s *SessionService) DestroySession(
	ctx context.Context,
	req *connect.Request[DestroySessionRequest],
) (*connect.Response[DestroySessionResponse], error) {
	id := req.Msg.SessionID
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session_id is required"))
	}
	result, err := s.worker.Do(func(*vm.VM) interface{} {
		return s.sessions.Destroy(id)
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	if !result.(bool) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return connect.NewResponse(&DestroySessionResponse{}), nil
}

// ReleaseHandle drops a handle so its value may be collected.
func (s *SessionService) ReleaseHandle(
	ctx context.Context,
	req *connect.Request[ReleaseHandleRequest],
) (*connect.Response[ReleaseHandleResponse], error) {
	result, err := s.worker.Do(func(*vm.VM) interface{} {
		return s.handles.Release(req.Msg.Handle)
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&ReleaseHandleResponse{Released: result.(bool)}), nil
}

// Complete lists keywords and names visible from a session's scope that
// begin with the prefix. Without a session only the externs are searched.
func (s *SessionService) Complete(
	ctx context.Context,
	req *connect.Request[CompleteRequest],
) (*connect.Response[CompleteResponse], error) {
	var scope *vm.Map
	if id := req.Msg.SessionID; id != "" {
		session, ok := s.sessions.Get(id)
		if !ok {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
		}
		scope = session.Scope
	}

	result, err := s.worker.Do(func(v *vm.VM) interface{} {
		start := scope
		if start == nil {
			start = v.Externs
		}
		return completions(v, start, req.Msg.Prefix)
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&CompleteResponse{Items: result.([]CompletionItem)}), nil
}

// completions walks the scope chain from start. Inner bindings hide outer
// ones of the same name.
func completions(v *vm.VM, start *vm.Map, prefix string) []CompletionItem {
	seen := make(map[string]bool)
	var items []CompletionItem
	for _, kw := range compiler.Keywords() {
		if strings.HasPrefix(kw, prefix) {
			seen[kw] = true
			items = append(items, CompletionItem{Label: kw, Kind: "keyword"})
		}
	}
	for m := start; m != nil; {
		m.Each(func(k, val vm.Object) {
			name, ok := k.(*vm.String)
			if !ok || seen[name.S] || !strings.HasPrefix(name.S, prefix) {
				return
			}
			seen[name.S] = true
			items = append(items, CompletionItem{Label: name.S, Kind: vm.TypeName(val)})
		})
		m, _ = m.Super().(*vm.Map)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items
}
