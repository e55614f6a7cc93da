package cmds

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/figaro/pkg/chat"
	"github.com/go-go-golems/figaro/pkg/conversation"
	"github.com/go-go-golems/figaro/pkg/events"
	"github.com/go-go-golems/figaro/pkg/persistence"
	"github.com/go-go-golems/figaro/pkg/persona"
	"github.com/go-go-golems/figaro/pkg/providers"
)

var ChatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE:  runChat,
}

func init() {
	ChatCmd.Flags().String("persona", "", "Path to the persona YAML file")
	_ = ChatCmd.MarkFlagRequired("persona")
	ChatCmd.Flags().String("provider", "openai", "Model backend (openai, ollama)")
	ChatCmd.Flags().String("session", "", "Session id to resume or create")
	ChatCmd.Flags().String("db", "", "SQLite database for session storage")
	ChatCmd.Flags().String("sessions-dir", "", "Directory for file-based session storage")
	ChatCmd.Flags().String("openai-base-url", "", "Override the OpenAI API base URL")
	ChatCmd.Flags().StringToString("var", nil, "Persona template variables (key=value)")
}

func makeProvider(cmd *cobra.Command) (providers.Provider, error) {
	name, _ := cmd.Flags().GetString("provider")

	switch name {
	case "openai":
		apiKey := viper.GetString("openai-api-key")
		if apiKey == "" {
			return nil, errors.New("no OpenAI API key configured")
		}
		options := []providers.OpenAIOption{}
		if baseURL, _ := cmd.Flags().GetString("openai-base-url"); baseURL != "" {
			options = append(options, providers.WithBaseURL(baseURL))
		}
		return providers.NewOpenAIProvider(apiKey, options...), nil

	case "ollama":
		return providers.NewOllamaProviderFromEnvironment()

	default:
		return nil, errors.Errorf("unknown provider %s", name)
	}
}

func makePersistence(cmd *cobra.Command) (persistence.Store, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	sessionsDir, _ := cmd.Flags().GetString("sessions-dir")

	if dbPath != "" && sessionsDir != "" {
		return nil, errors.New("--db and --sessions-dir are mutually exclusive")
	}
	if dbPath != "" {
		return persistence.NewSQLiteStore(dbPath)
	}
	if sessionsDir != "" {
		return persistence.NewFileStore(sessionsDir)
	}
	return nil, nil
}

func makeSession(
	ctx context.Context,
	cmd *cobra.Command,
	p *persona.Persona,
	provider providers.Provider,
	store persistence.Store,
) (*chat.Session, error) {
	vars, _ := cmd.Flags().GetStringToString("var")
	templateVars := map[string]interface{}{}
	for k, v := range vars {
		templateVars[k] = v
	}

	options := []chat.SessionOption{
		chat.WithTemplateVars(templateVars),
	}
	if store != nil {
		options = append(options, chat.WithPersistence(store))
	}

	sessionID, _ := cmd.Flags().GetString("session")
	if sessionID != "" && store != nil {
		s, err := chat.LoadSession(ctx, sessionID, store, p, provider, options...)
		if err == nil {
			log.Info().Str("session_id", sessionID).Msg("resumed session")
			return s, nil
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			return nil, err
		}
	}
	if sessionID != "" {
		options = append(options, chat.WithSessionID(sessionID))
	}

	return chat.NewSession(p, provider, options...)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	personaPath, _ := cmd.Flags().GetString("persona")
	p, err := persona.LoadFile(personaPath)
	if err != nil {
		return err
	}

	provider, err := makeProvider(cmd)
	if err != nil {
		return err
	}

	store, err := makePersistence(cmd)
	if err != nil {
		return err
	}

	routerOptions := []events.EventRouterOption{}
	if viper.GetBool("verbose") {
		routerOptions = append(routerOptions, events.WithVerbose(true))
	}
	router, err := events.NewEventRouter(routerOptions...)
	if err != nil {
		return err
	}
	defer func() {
		_ = router.Close()
	}()

	router.AddHandler("chat-printer", "chat", events.PrinterFunc(p.Name, os.Stdout))

	session, err := makeSession(ctx, cmd, p, provider, store)
	if err != nil {
		return err
	}
	session.PublisherManager().SubscribePublisher("chat", router.Publisher)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return router.Run(ctx)
	})
	g.Go(func() error {
		defer cancel()
		<-router.Running()
		return repl(ctx, session)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func repl(ctx context.Context, session *chat.Session) error {
	fmt.Printf("session %s, /help for commands\n", session.ID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := handleCommand(ctx, session, line)
			if err != nil {
				fmt.Printf("error: %s\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		if _, err := session.Send(ctx, line); err != nil {
			fmt.Printf("error: %s\n", err)
		}
	}
}

func handleCommand(ctx context.Context, session *chat.Session, line string) (bool, error) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		fmt.Println("/path, /siblings <id>, /switch <id>, /fork <id>, /resend, /quit")

	case "/resend":
		_, err := session.Resend(ctx)
		return false, err

	case "/path":
		for _, node := range session.ActivePath() {
			fmt.Printf("%s [%s] %s\n", node.ID, node.Kind, node.Text)
		}

	case "/siblings":
		if len(args) != 1 {
			return false, errors.New("usage: /siblings <parent-id>")
		}
		for _, node := range session.ListSiblings(conversation.NodeID(args[0])) {
			marker := " "
			if node.Active {
				marker = "*"
			}
			fmt.Printf("%s %s [%s] %s\n", marker, node.ID, node.Kind, node.Text)
		}

	case "/switch":
		if len(args) != 1 {
			return false, errors.New("usage: /switch <node-id>")
		}
		return false, session.SwitchBranch(ctx, conversation.NodeID(args[0]))

	case "/fork":
		if len(args) != 1 {
			return false, errors.New("usage: /fork <parent-id>")
		}
		node, err := session.Fork(ctx, conversation.NodeID(args[0]), "")
		if err != nil {
			return false, err
		}
		fmt.Printf("forked draft %s, next message lands on the new branch\n", node.ID)

	default:
		return false, errors.Errorf("unknown command %s", cmd)
	}

	return false, nil
}
