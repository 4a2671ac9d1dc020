package command

import (
	"context"
	"strings"

	"github.com/sandevgo/reliefdesk/internal/core"
)

type AskCommand struct {
	query     Query
	formatter *ResponseFormatter
}

func NewAskCommand(query Query, f *ResponseFormatter) *AskCommand {
	return &AskCommand{query: query, formatter: f}
}

func (c *AskCommand) Name() string        { return "ask" }
func (c *AskCommand) Description() string { return "Ask a question about today's entries" }
func (c *AskCommand) MinRole() core.Role  { return core.RoleViewer }

func (c *AskCommand) Execute(ctx context.Context, _ core.Caller, args []string) (string, error) {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return c.formatter.Combine(
			c.formatter.Usage("/ask <question>"),
			c.formatter.Examples([]string{
				"/ask who is covering 3B in period 4?",
				"/ask any venue changes today?",
			}),
		), nil
	}
	return c.query.Ask(ctx, question)
}

// TodayCommand shows today's board: counts by default, an AI digest with
// "full", or a digest of one category.
type TodayCommand struct {
	query      Query
	categories []core.Category
	formatter  *ResponseFormatter
}

func NewTodayCommand(query Query, categories []core.Category, f *ResponseFormatter) *TodayCommand {
	return &TodayCommand{query: query, categories: categories, formatter: f}
}

func (c *TodayCommand) Name() string        { return "today" }
func (c *TodayCommand) Description() string { return "Today's entries: /today [full|category]" }
func (c *TodayCommand) MinRole() core.Role  { return core.RoleViewer }

func (c *TodayCommand) Execute(ctx context.Context, _ core.Caller, args []string) (string, error) {
	if len(args) == 0 {
		return c.query.Overview(ctx)
	}

	arg := strings.ToLower(strings.Join(args, " "))
	if arg == "full" || arg == "all" {
		return c.query.Summary(ctx, "")
	}
	for _, cat := range c.categories {
		if arg == cat.Name || arg == strings.ToLower(cat.Label) {
			return c.query.Summary(ctx, cat.Name)
		}
	}

	names := make([]string, 0, len(c.categories))
	for _, cat := range c.categories {
		names = append(names, cat.Name)
	}
	return "", &core.ValidationError{
		Field:   "category",
		Message: "unknown category, use one of: full, " + strings.Join(names, ", "),
	}
}
