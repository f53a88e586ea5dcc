package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/api"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/logger"
	"github.com/stemsi/exstem-client/internal/session"
	"github.com/stemsi/exstem-client/internal/store"
	"github.com/stemsi/exstem-client/internal/ui"
	"github.com/stemsi/exstem-client/internal/validator"
	"golang.org/x/term"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	validator.Setup()

	st := store.NewFileStore(cfg.TokenPath)
	client := api.NewClient(cfg.BaseURL, cfg.HTTPTimeout, log)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "login":
		err = runLogin(client, st)
	case "logout":
		err = st.Clear()
	case "lobby":
		err = runLobby(client, st)
	case "take":
		err = runTake(cfg, client, st, log, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: exstem-client <command>

commands:
  login                      authenticate and store the session token
  logout                     discard the stored token
  lobby                      list exams available to you
  take <exam-id> [entry]     join (with entry token) and take an exam`)
}

func runLogin(client *api.Client, st *store.FileStore) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("NISN: ")
	nisn, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read nisn: %w", err)
	}
	nisn = strings.TrimSpace(nisn)

	fmt.Print("Password: ")
	passBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := client.Login(ctx, nisn, string(passBytes))
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	if err := st.Save(result.Token, result.Student); err != nil {
		return err
	}

	fmt.Printf("Logged in as %s (%s)\n", result.Student.Name, result.Student.NISN)
	return nil
}

func runLobby(client *api.Client, st *store.FileStore) error {
	token, ok := st.Token()
	if !ok {
		return errors.New("not logged in, run `exstem-client login` first")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	exams, err := client.GetLobby(ctx, token)
	if err != nil {
		return fmt.Errorf("fetch lobby: %w", err)
	}

	if len(exams) == 0 {
		fmt.Println("No exams available right now.")
		return nil
	}

	for _, exam := range exams {
		line := fmt.Sprintf("%-36s  %-30s  %s", exam.ID, exam.Title, exam.LobbyStatus)
		if exam.FinalScore != nil {
			line += fmt.Sprintf("  score: %.1f", *exam.FinalScore)
		}
		fmt.Println(line)
	}
	return nil
}

func runTake(cfg *config.Config, client *api.Client, st *store.FileStore, log zerolog.Logger, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: exstem-client take <exam-id> [entry-token]")
	}

	examID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid exam ID %q", args[0])
	}

	token, ok := st.Token()
	if !ok {
		return errors.New("not logged in, run `exstem-client login` first")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Joining is idempotent server-side, so rejoining a resumed attempt
	// is harmless.
	if len(args) >= 2 {
		if err := client.JoinExam(ctx, examID, args[1], token); err != nil {
			return fmt.Errorf("join exam: %w", err)
		}
	}

	// Autosave is best-effort: an unreachable stream degrades the attempt
	// to submit-only persistence, it never blocks taking the exam.
	var opts session.Options
	stream, err := api.DialAutosaveStream(cfg.WSBaseURL, examID, token, log)
	if err != nil {
		log.Warn().Err(err).Msg("Autosave stream unavailable, continuing without it")
	} else {
		opts.Autosaver = stream
		defer stream.Close()
	}

	sess := session.New(examID, client, st, log, opts)
	defer sess.Close()

	if err := sess.Load(ctx); err != nil {
		switch {
		case errors.Is(err, session.ErrUnauthenticated):
			return errors.New("session expired, run `exstem-client login` again")
		case errors.Is(err, session.ErrEmptyExam):
			return errors.New("this exam has no questions yet; ask your teacher")
		default:
			log.Error().Err(err).Msg("Exam load failed")
			return errors.New("could not load the exam, check your connection and try again")
		}
	}

	program := tea.NewProgram(
		ui.NewModel(sess, log),
		tea.WithAltScreen(),
		tea.WithReportFocus(),
	)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run exam screen: %w", err)
	}
	return nil
}
