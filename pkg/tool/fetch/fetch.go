package fetch

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/tool"
	"github.com/m-mizutani/recall/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

const (
	Name            = "fetch_url"
	DefaultMaxChars = 5000
)

type fetchInput struct {
	URL string `json:"url" jsonschema:"Absolute http or https URL of the page to read"`
}

// Tool reads a web page and returns its text to the model
type Tool struct {
	maxChars     int64
	ignoreRobots bool
	userAgent    string

	fetcher adapter.Fetcher
	params  *genai.Schema
}

// New creates a new fetch_url tool
func New() *Tool {
	return &Tool{
		maxChars: DefaultMaxChars,
	}
}

func (x *Tool) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "fetch-max-chars",
			Sources:     cli.EnvVars("RECALL_FETCH_MAX_CHARS"),
			Usage:       "Maximum characters of page text returned by fetch_url",
			Value:       DefaultMaxChars,
			Destination: &x.maxChars,
		},
		&cli.BoolFlag{
			Name:        "fetch-ignore-robots",
			Sources:     cli.EnvVars("RECALL_FETCH_IGNORE_ROBOTS"),
			Usage:       "Do not consult robots.txt before fetching",
			Destination: &x.ignoreRobots,
		},
		&cli.StringFlag{
			Name:        "fetch-user-agent",
			Sources:     cli.EnvVars("RECALL_FETCH_USER_AGENT"),
			Usage:       "User-Agent header sent by fetch_url",
			Destination: &x.userAgent,
		},
	}
}

func (x *Tool) Init(ctx context.Context, client *tool.Client) (bool, error) {
	params, err := tool.ParametersOf[fetchInput]()
	if err != nil {
		return false, goerr.Wrap(err, "failed to build fetch_url parameters")
	}
	x.params = params

	if client != nil && client.Fetcher != nil {
		x.fetcher = client.Fetcher
		return true, nil
	}

	var opts []adapter.FetcherOption
	if x.ignoreRobots {
		opts = append(opts, adapter.WithoutRobots())
	}
	if x.userAgent != "" {
		opts = append(opts, adapter.WithUserAgent(x.userAgent))
	}
	x.fetcher = adapter.NewFetcher(opts...)

	return true, nil
}

func (x *Tool) Prompt(ctx context.Context) string {
	return "Use the fetch_url tool to read a web page when the question refers to a URL or needs content that is not in memory."
}

func (x *Tool) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        Name,
				Description: "Fetch a web page and return its readable text. Long pages are truncated.",
				Parameters:  x.params,
			},
		},
	}
}

// Execute never fails on fetch errors. The error text is returned to the
// model as the observation so it can react to it.
func (x *Tool) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	input, err := tool.DecodeArgs[fetchInput](fc.Args)
	if err != nil {
		return nil, err
	}

	logging.From(ctx).Debug("fetching page", "url", input.URL)

	var text string
	page, err := x.fetcher.Fetch(ctx, input.URL)
	if err != nil {
		logging.From(ctx).Warn("fetch failed", "url", input.URL, logging.ErrAttr(err))
		text = "Error fetching: " + err.Error()
	} else {
		text = truncate(page.Text, int(x.maxChars))
		if page.Title != "" {
			text = page.Title + "\n\n" + text
		}
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{"result": text},
	}, nil
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
