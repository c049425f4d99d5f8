// cartctl is a CLI for driving a running cartd.
// Each command performs a single operation, making it composable for scripts.
//
// Examples:
//
//	cartctl login u-42
//	KEY=$(cartctl add 60 -n 2 -q)
//	cartctl set "$KEY" 5
//	cartctl get
//	cartctl rm "$KEY"
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storefront-cart/internal/model"
)

// ANSI color codes
type palette struct {
	reset, red, green, yellow, cyan, gray, bold string
}

var colors = palette{
	reset:  "\033[0m",
	red:    "\033[31m",
	green:  "\033[32m",
	yellow: "\033[33m",
	cyan:   "\033[36m",
	gray:   "\033[90m",
	bold:   "\033[1m",
}

// cli holds global flags and output for one invocation.
type cli struct {
	server  string
	quiet   bool
	noColor bool
	verbose bool
	timeout time.Duration

	out    io.Writer
	colors palette
	client *http.Client
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "cartctl",
		Short: "Drive a running cartd from the command line",
		Long: `cartctl talks to the cartd REST API.

Quantity changes are debounced by the server: 'set' returns the optimistic
cart immediately and the store is written shortly after. Run 'get' again to
see the reconciled result.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.out = cmd.OutOrStdout()
			c.colors = colors
			if c.noColor || os.Getenv("NO_COLOR") != "" {
				c.colors = palette{}
			}
			c.client = &http.Client{Timeout: c.timeout}
		},
	}

	root.PersistentFlags().StringVar(&c.server, "server", envOr("CARTD_URL", "http://localhost:8080"), "cartd base URL")
	root.PersistentFlags().BoolVarP(&c.quiet, "quiet", "q", false, "Quiet mode - print only the essential value")
	root.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "Disable colored output")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Show full request/response")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "HTTP timeout")

	root.AddCommand(
		c.getCmd(),
		c.addCmd(),
		c.setCmd(),
		c.rmCmd(),
		c.syncCmd(),
		c.loginCmd(),
		c.logoutCmd(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

// apiError is the error body returned by cartd.
type apiError struct {
	Status   int
	Code     string          `json:"code"`
	Message  string          `json:"message"`
	Messages []model.Message `json:"-"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

// doRequest sends body as JSON and decodes the response into out.
func (c *cli) doRequest(method, path string, body, out any) error {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, strings.TrimRight(c.server, "/")+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.verbose {
		c.printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if c.verbose {
		c.printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error    apiError        `json:"error"`
			Messages []model.Message `json:"messages"`
		}
		if err := json.Unmarshal(respBody, &envelope); err != nil || envelope.Error.Code == "" {
			return &apiError{Status: resp.StatusCode, Code: "HTTP_ERROR", Message: strings.TrimSpace(string(respBody))}
		}
		envelope.Error.Status = resp.StatusCode
		envelope.Error.Messages = envelope.Messages
		return &envelope.Error
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func (c *cli) printRequest(method, path string, body []byte) {
	fmt.Fprintf(c.out, "\n%s▶ REQUEST%s %s%s %s%s\n", c.colors.yellow, c.colors.reset, c.colors.bold, method, path, c.colors.reset)
	if body != nil {
		c.printJSON(body, "  ")
	}
}

func (c *cli) printResponse(status int, body []byte, duration time.Duration) {
	statusColor := c.colors.green
	if status >= 400 {
		statusColor = c.colors.red
	}
	fmt.Fprintf(c.out, "\n%s◀ RESPONSE%s %s%d%s (%v)\n", c.colors.cyan, c.colors.reset, statusColor, status, c.colors.reset, duration)
	c.printJSON(body, "  ")
}

func (c *cli) printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Fprintf(c.out, "%s%s\n", prefix, string(data))
		return
	}
	fmt.Fprintln(c.out, pretty.String())
}

func (c *cli) printSuccess(format string, args ...any) {
	if !c.quiet {
		fmt.Fprintf(c.out, "%s✓ %s%s\n", c.colors.green, fmt.Sprintf(format, args...), c.colors.reset)
	}
}

func (c *cli) printError(format string, args ...any) {
	fmt.Fprintf(c.out, "%s✗ %s%s\n", c.colors.red, fmt.Sprintf(format, args...), c.colors.reset)
}

func (c *cli) printWarning(format string, args ...any) {
	fmt.Fprintf(c.out, "%s⚠ %s%s\n", c.colors.yellow, fmt.Sprintf(format, args...), c.colors.reset)
}

func (c *cli) printMessages(msgs []model.Message) {
	if c.quiet {
		return
	}
	for _, msg := range msgs {
		text := msg.Content
		if text == "" {
			text = msg.Code
		}
		if text == "" {
			continue
		}

		switch msg.Type {
		case model.MessageError:
			c.printError("%s", text)
		case model.MessageWarning:
			c.printWarning("%s", text)
		default:
			fmt.Fprintf(c.out, "%s  ℹ %s%s\n", c.colors.gray, text, c.colors.reset)
		}
	}
}

// failure prints the server's notices along with err and returns err so
// cobra exits non-zero.
func (c *cli) failure(action string, err error) error {
	if apiErr, ok := err.(*apiError); ok {
		c.printMessages(apiErr.Messages)
	}
	c.printError("%s: %v", action, err)
	return err
}

func formatCents(cents int64) string {
	return "$" + model.FormatCents(cents)
}
