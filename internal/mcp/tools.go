package mcp

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/recall/internal/ops"
)

var searchToolDef = mcp.NewTool("memory_search",
	mcp.WithDescription("Search memories captured from past sessions in this project. "+
		"Returns profile facts and ranked conversation snippets."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description(fmt.Sprintf("What to look for (max %d characters)", ops.MaxQueryLength)),
	),
	mcp.WithNumber("limit",
		mcp.Description(fmt.Sprintf("Maximum hits (default %d, max %d)", ops.DefaultSearchLimit, ops.MaxSearchLimit)),
	),
	mcp.WithString("cwd",
		mcp.Description("Project directory; defaults to the server's working directory"),
	),
)

var addToolDef = mcp.NewTool("memory_add",
	mcp.WithDescription("Save a note to this project's memory so future sessions can recall it."),
	mcp.WithString("content",
		mcp.Required(),
		mcp.Description("Text to remember"),
	),
	mcp.WithString("cwd",
		mcp.Description("Project directory; defaults to the server's working directory"),
	),
)

var statusToolDef = mcp.NewTool("memory_status",
	mcp.WithDescription("Report whether memory is configured and how far each session has been captured."),
	mcp.WithString("session_id",
		mcp.Description("Describe one session instead of listing all"),
	),
	mcp.WithString("cwd",
		mcp.Description("Project directory; defaults to the server's working directory"),
	),
)
