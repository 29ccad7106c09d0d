package server

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls a Server over HTTP.
type Client struct {
	evaluate       *connect.Client[EvaluateRequest, EvaluateResponse]
	checkSyntax    *connect.Client[CheckSyntaxRequest, CheckSyntaxResponse]
	createSession  *connect.Client[CreateSessionRequest, CreateSessionResponse]
	destroySession *connect.Client[DestroySessionRequest, DestroySessionResponse]
	releaseHandle  *connect.Client[ReleaseHandleRequest, ReleaseHandleResponse]
	complete       *connect.Client[CompleteRequest, CompleteResponse]
}

// NewClient returns a client for the server at baseURL, for example
// "http://localhost:4190".
func NewClient(httpClient connect.HTTPClient, baseURL string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	codec := connect.WithCodec(cborCodec{})
	return &Client{
		evaluate:       connect.NewClient[EvaluateRequest, EvaluateResponse](httpClient, baseURL+EvaluateProcedure, codec),
		checkSyntax:    connect.NewClient[CheckSyntaxRequest, CheckSyntaxResponse](httpClient, baseURL+CheckSyntaxProcedure, codec),
		createSession:  connect.NewClient[CreateSessionRequest, CreateSessionResponse](httpClient, baseURL+CreateSessionProcedure, codec),
		destroySession: connect.NewClient[DestroySessionRequest, DestroySessionResponse](httpClient, baseURL+DestroySessionProcedure, codec),
		releaseHandle:  connect.NewClient[ReleaseHandleRequest, ReleaseHandleResponse](httpClient, baseURL+ReleaseHandleProcedure, codec),
		complete:       connect.NewClient[CompleteRequest, CompleteResponse](httpClient, baseURL+CompleteProcedure, codec),
	}
}

func (c *Client) Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	return unary(ctx, c.evaluate, req)
}

func (c *Client) CheckSyntax(ctx context.Context, req *CheckSyntaxRequest) (*CheckSyntaxResponse, error) {
	return unary(ctx, c.checkSyntax, req)
}

func (c *Client) CreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	return unary(ctx, c.createSession, req)
}

func (c *Client) DestroySession(ctx context.Context, req *DestroySessionRequest) (*DestroySessionResponse, error) {
	return unary(ctx, c.destroySession, req)
}

func (c *Client) ReleaseHandle(ctx context.Context, req *ReleaseHandleRequest) (*ReleaseHandleResponse, error) {
	return unary(ctx, c.releaseHandle, req)
}

func (c *Client) Complete(ctx context.Context, req *CompleteRequest) (*CompleteResponse, error) {
	return unary(ctx, c.complete, req)
}

func unary[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
