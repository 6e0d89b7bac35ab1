package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"askgpt/internal/llm"
)

const parserPrompt = `You are an intelligent automation parser.
Extract the INTENT and PARAMETERS from the user's request.

Intents:
1. SEND_EMAIL
   - Params: to_email, subject (infer if missing), body (infer if missing)
2. OPEN_APP
   - Params: app_name (e.g. 'code', 'chrome', 'firefox')
3. OPEN_FILE
   - Params: file_path, app_name (optional)

Output JSON ONLY.
Example: { "intent": "SEND_EMAIL", "params": { "to_email": "hr@xyz.com", "subject": "Hello", "body": "Hi there" } }
Example: { "intent": "OPEN_APP", "params": { "app_name": "code" } }`

type commandParams struct {
	ToEmail  string `json:"to_email"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	AppName  string `json:"app_name"`
	FilePath string `json:"file_path"`
}

type parsedCommand struct {
	Intent string        `json:"intent"`
	Params commandParams `json:"params"`
}

// Mailer delivers a plain-text email.
type Mailer interface {
	Send(to, subject, body string) error
}

// Launcher starts a local process without waiting for it.
type Launcher interface {
	Start(name string, args ...string) error
}

// Agent turns natural-language system-action requests into email sends
// or application launches. Execute never fails outward: every internal
// error becomes a descriptive result string.
type Agent struct {
	parser   llm.Client
	mailer   Mailer
	launcher Launcher
	log      *zap.Logger
}

func NewAgent(parser llm.Client, mailer Mailer, launcher Launcher, log *zap.Logger) *Agent {
	return &Agent{parser: parser, mailer: mailer, launcher: launcher, log: log}
}

func (a *Agent) Execute(ctx context.Context, command string) string {
	parsed, err := a.parseCommand(ctx, command)
	if err != nil {
		a.log.Warn("automation command parse failed", zap.Error(err))
		return "Sorry, I couldn't understand the automation request."
	}

	switch parsed.Intent {
	case "SEND_EMAIL":
		return a.sendEmail(parsed.Params)
	case "OPEN_APP":
		return a.openApp(parsed.Params.AppName)
	case "OPEN_FILE":
		return a.openFile(parsed.Params.FilePath, parsed.Params.AppName)
	default:
		return "Sorry, I couldn't understand the automation request."
	}
}

func (a *Agent) parseCommand(ctx context.Context, command string) (parsedCommand, error) {
	resp, err := a.parser.Generate(ctx, []llm.Message{
		{Role: "system", Content: parserPrompt},
		{Role: "user", Content: command},
	})
	if err != nil {
		return parsedCommand{}, fmt.Errorf("parse automation command: %w", err)
	}

	var parsed parsedCommand
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &parsed); err != nil {
		return parsedCommand{}, fmt.Errorf("decode automation command: %w", err)
	}
	return parsed, nil
}

func (a *Agent) sendEmail(p commandParams) string {
	subject := p.Subject
	if subject == "" {
		subject = "No Subject"
	}
	if err := a.mailer.Send(p.ToEmail, subject, p.Body); err != nil {
		return fmt.Sprintf("Failed to send email: %v", err)
	}
	return fmt.Sprintf("Email sent successfully to %s.", p.ToEmail)
}

// Friendly names to actual commands.
var appAliases = map[string]string{
	"vs code":    "code",
	"vscode":     "code",
	"chrome":     "google-chrome",
	"calculator": "gnome-calculator",
}

func (a *Agent) openApp(appName string) string {
	if appName == "" {
		return "Sorry, I couldn't tell which application to open."
	}
	cmd := appName
	if mapped, ok := appAliases[strings.ToLower(appName)]; ok {
		cmd = mapped
	}
	if err := a.launcher.Start(cmd); err != nil {
		return fmt.Sprintf("Failed to open %s: %v", appName, err)
	}
	return fmt.Sprintf("Opened %s.", appName)
}

func (a *Agent) openFile(filePath, appName string) string {
	if filePath == "" {
		return "Sorry, I couldn't tell which file to open."
	}
	if appName != "" {
		if err := a.launcher.Start(appName, filePath); err != nil {
			return fmt.Sprintf("Failed to open file: %v", err)
		}
		return fmt.Sprintf("Opened %s with %s.", filePath, appName)
	}
	if err := a.launcher.Start("xdg-open", filePath); err != nil {
		return fmt.Sprintf("Failed to open file: %v", err)
	}
	return fmt.Sprintf("Opened %s.", filePath)
}

// stripFences unwraps ```json ... ``` blocks some models insist on.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
