package receptionist

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/adhityan/resto-ai-sub001/agent/nodes"
)

func (r *Receptionist) compileSetupGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_call",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateCall(in, r.newID, r.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_call: %w", err)
	}

	if err := graph.AddLambdaNode("resolve_tenant",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ResolveTenant(ctx, in, r.tenants, r.shared)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node resolve_tenant: %w", err)
	}

	if err := graph.AddLambdaNode("build_client",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.BuildClient(ctx, in, r.clients, r.shared)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node build_client: %w", err)
	}

	if err := graph.AddLambdaNode("load_customer",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadCustomer(ctx, in, r.callingCode)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_customer: %w", err)
	}

	if err := graph.AddLambdaNode("open_session",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.OpenSession(ctx, in, r.sessionOptions())
		}),
	); err != nil {
		return nil, fmt.Errorf("add node open_session: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_call"},
		{"validate_call", "resolve_tenant"},
		{"resolve_tenant", "build_client"},
		{"build_client", "load_customer"},
		{"load_customer", "open_session"},
		{"open_session", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("receptionist.setup_call"))
	if err != nil {
		return nil, fmt.Errorf("compile setup graph: %w", err)
	}
	return runner, nil
}
