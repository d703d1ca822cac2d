// Command crmchat is an interactive chatbot over CRM data. It connects a
// chat-completions model to the query translator and the Salesforce
// executor, so questions like "what are my open opportunities?" turn into
// SOQL behind the scenes.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/crmbridge/sql-to-soql/lib/chat"
	"github.com/crmbridge/sql-to-soql/lib/crm"
	"github.com/crmbridge/sql-to-soql/lib/plog"
	"github.com/crmbridge/sql-to-soql/lib/salesforce"
	"github.com/crmbridge/sql-to-soql/lib/schema"
)

// wrapWidth keeps model answers from scrolling horizontally.
const wrapWidth = 80

type config struct {
	SchemaFile  string              `json:"schemaFile"`
	Tables      map[string][]string `json:"tables"`
	ForeignKeys []schema.ForeignKey `json:"foreignKeys"`
	Salesforce  salesforce.Config   `json:"salesforce"`
	Chat        chat.ClientConfig   `json:"chat"`
	LogLevel    string              `json:"logLevel"`
}

func main() {
	configFile := flag.String("config", "", "configuration file")
	scriptFile := flag.String("script", "", "replay questions from a file instead of stdin")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	flag.Parse()

	logger := plog.New()

	var cfg config
	if *configFile != "" {
		content, err := os.ReadFile(*configFile)
		if err != nil {
			logger.Errorf("failed to read config file: %v", err)
			os.Exit(1)
		}
		if err = json.Unmarshal(content, &cfg); err != nil {
			logger.Errorf("failed to parse config file: %v", err)
			os.Exit(1)
		}
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if cfg.LogLevel != "" {
		level, err := plog.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		logger.SetLevel(level)
	}

	var store *schema.Store
	var err error
	if strings.TrimSpace(cfg.SchemaFile) != "" {
		store, err = schema.LoadFile(cfg.SchemaFile)
	} else {
		store, err = schema.NewStore(cfg.Tables, cfg.ForeignKeys)
	}
	if err != nil {
		logger.Errorf("failed to load schema: %v", err)
		os.Exit(1)
	}

	ctx := context.Background()

	cfg.Salesforce.FromEnv()
	sf := salesforce.NewClient(cfg.Salesforce, logger)
	user, err := sf.CurrentUser(ctx)
	if err != nil {
		logger.Errorf("failed to connect to salesforce: %v", err)
		os.Exit(1)
	}

	db := crm.NewDatabase(store, sf, logger)
	session := chat.NewSession(chat.NewClient(cfg.Chat), db, chat.SessionConfig{
		SystemPrompt: crm.SystemPrompt(user),
	}, logger)

	fmt.Println("Welcome to ChatCRM. You may ask questions about accounts, opportunities, and contacts")

	if *scriptFile != "" {
		if err := runScript(ctx, session, *scriptFile, logger); err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
	}

	runInteractive(ctx, session, logger)
}

// runScript replays a canned question list, one question per line. Blank
// lines and # comments are skipped.
func runScript(ctx context.Context, session *chat.Session, path string, logger plog.Logger) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read script file: %w", err)
	}
	for _, line := range strings.Split(string(content), "\n") {
		question := strings.TrimSpace(line)
		if question == "" || strings.HasPrefix(question, "#") {
			continue
		}
		fmt.Println("User: " + question)
		askAndPrint(ctx, session, question, logger)
	}
	return nil
}

func runInteractive(ctx context.Context, session *chat.Session, logger plog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\nUser: ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		askAndPrint(ctx, session, question, logger)
	}
}

func askAndPrint(ctx context.Context, session *chat.Session, question string, logger plog.Logger) {
	answer, err := session.Ask(ctx, question)
	if err != nil {
		logger.Errorf("chat error: %v", err)
		return
	}
	botPrint(rewrap(answer, wrapWidth))
}

// botPrint writes an answer to the terminal. A one-line answer goes on the
// prompt line; a multi-line answer gets each line indented under it.
func botPrint(text string) {
	if !strings.Contains(text, "\n") {
		fmt.Println("\nGPT:  " + text)
	} else {
		fmt.Println("\nGPT:")
		for _, line := range strings.Split(text, "\n") {
			fmt.Println("      " + line)
		}
	}
	fmt.Println()
}

// rewrap word-wraps each line of text to at most width columns. Lines that
// already fit pass through unchanged.
func rewrap(text string, width int) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if len(line) <= width {
			out = append(out, line)
			continue
		}
		out = append(out, wrapLine(line, width)...)
	}
	return strings.Join(out, "\n")
}

func wrapLine(line string, width int) []string {
	words := strings.Fields(line)
	if len(words) == 0 {
		return []string{""}
	}
	var wrapped []string
	current := words[0]
	for _, word := range words[1:] {
		if len(current)+1+len(word) > width {
			wrapped = append(wrapped, current)
			current = word
			continue
		}
		current += " " + word
	}
	return append(wrapped, current)
}
