package conversation

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// compileTurnGraph runs one model step over the full message history.
func compileTurnGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
) (compose.Runnable[[]*schema.Message, *schema.Message], error) {
	graph := compose.NewGraph[[]*schema.Message, *schema.Message]()
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add turn model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "model"); err != nil {
		return nil, fmt.Errorf("add turn edge start->model: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add turn edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("conversation.turn"))
	if err != nil {
		return nil, fmt.Errorf("compile conversation turn graph: %w", err)
	}
	return runner, nil
}
