package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/autounite/admin-console/internal/apiclient"
	"github.com/autounite/admin-console/internal/auth"
	apierrors "github.com/autounite/admin-console/internal/errors"
	"github.com/autounite/admin-console/internal/guard"
	"github.com/autounite/admin-console/internal/logging"
	"github.com/autounite/admin-console/internal/session"
)

// Exit codes returned by Run.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

const (
	msgNotSignedIn    = "Not signed in. Run `adminctl login` first."
	msgSessionExpired = "Your session has expired. Run `adminctl login` to sign in again."
)

var (
	errNotSignedIn    = errors.New(msgNotSignedIn)
	errSessionExpired = errors.New(msgSessionExpired)
)

// usageErr is a command line mistake. An empty message means the flag
// package already reported it.
type usageErr struct{ msg string }

func (e usageErr) Error() string { return e.msg }

// PasswordFunc reads a password after showing prompt.
type PasswordFunc func(prompt string) (string, error)

// Options configures an App.
type Options struct {
	API     apiclient.Config
	Backend session.Backend
	Logger  *logging.Logger

	In  io.Reader
	Out io.Writer
	Err io.Writer
	// ReadPassword defaults to a hidden terminal prompt when In is a
	// terminal, and to reading a line from In otherwise.
	ReadPassword PasswordFunc
}

// App is adminctl. One App serves one invocation.
type App struct {
	out          *Printer
	errOut       *Printer
	in           *bufio.Reader
	readPassword PasswordFunc
	log          *logging.Logger

	store  *session.Store
	policy *guard.Policy
	api    *apiclient.Client
	auth   *auth.Service
	guard  *guard.Guard
}

// New wires the session store, request decorator and route guard.
func New(opts Options) (*App, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.API.Logger == nil {
		opts.API.Logger = opts.Logger
	}

	a := &App{
		out:    NewPrinter(opts.Out),
		errOut: NewPrinter(opts.Err),
		in:     bufio.NewReader(opts.In),
		log:    opts.Logger,
	}
	a.readPassword = opts.ReadPassword
	if a.readPassword == nil {
		a.readPassword = a.defaultPassword(opts.In, opts.Err)
	}

	a.store = session.New(opts.Backend, opts.Logger)
	a.policy = guard.NewPolicy(guard.LoginRoute, opts.Logger)
	api, err := apiclient.New(opts.API, a.store, a.policy)
	if err != nil {
		return nil, err
	}
	a.api = api
	a.auth = auth.New(api)
	a.guard = guard.New(a.store, a.auth, guard.WithLogger(opts.Logger))
	return a, nil
}

// Run executes one command line and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.usage()
		return ExitUsage
	}

	var err error
	switch args[0] {
	case "help", "-h", "--help":
		a.usage()
		return ExitOK
	case "login":
		err = a.cmdLogin(ctx, args[1:])
	case "register":
		err = a.cmdRegister(ctx, args[1:])
	case "logout":
		err = a.cmdLogout(args[1:])
	case "whoami":
		err = a.cmdWhoami(ctx, args[1:])
	case "queries":
		err = a.cmdQueries(ctx, args[1:])
	case "users":
		err = a.cmdUsers(ctx, args[1:])
	case "requests":
		err = a.cmdRequests(ctx, args[1:])
	case "completion":
		err = a.cmdCompletion(args[1:])
	default:
		a.errOut.Error("unknown command: " + args[0])
		a.usage()
		return ExitUsage
	}
	return a.finish(err)
}

// finish maps a command result to an exit code. A teardown during the
// command produces exactly one expiry notice and nothing else.
func (a *App) finish(err error) int {
	if _, expired := a.policy.TakeRedirect(); expired || errors.Is(err, errSessionExpired) {
		a.errOut.Warning(msgSessionExpired)
		return ExitError
	}
	var ue usageErr
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return ExitOK
	case errors.As(err, &ue):
		if ue.msg != "" {
			a.errOut.Error(ue.msg)
		}
		return ExitUsage
	default:
		a.errOut.Error(apierrors.Message(err))
		return ExitError
	}
}

// requireSession runs the route guard for a protected command. A missing
// token fails without contacting the backend; a rejected token has already
// torn the session down.
func (a *App) requireSession(ctx context.Context, route string) (session.Profile, error) {
	d := a.guard.Check(ctx, route)
	if _, redirect := a.policy.Navigate(d); !redirect {
		return d.Profile, nil
	}
	switch {
	case d.Err == nil:
		return session.Profile{}, errNotSignedIn
	case apierrors.IsUnauthorized(d.Err):
		return session.Profile{}, errSessionExpired
	default:
		return session.Profile{}, d.Err
	}
}

func usageError(format string, args ...interface{}) error {
	return usageErr{msg: fmt.Sprintf(format, args...)}
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func (a *App) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut.Writer())
	return fs
}

// parse parses args, allowing one leading positional id before the flags.
func parse(fs *flag.FlagSet, args []string) (string, error) {
	var id string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		id, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return "", err
		}
		return "", usageErr{}
	}
	if id == "" && fs.NArg() > 0 {
		id = fs.Arg(0)
	}
	return id, nil
}

func (a *App) prompt(label string) (string, error) {
	a.errOut.Printf("%s", label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSpace(strings.TrimSuffix(label, ": ")), err)
	}
	return strings.TrimSpace(line), nil
}

func (a *App) confirm(question string) (bool, error) {
	answer, err := a.prompt(question + " [y/N]: ")
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

func (a *App) defaultPassword(in io.Reader, echo io.Writer) PasswordFunc {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return a.prompt
	}
	return func(label string) (string, error) {
		fmt.Fprint(echo, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(echo)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
}

func (a *App) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out.Writer())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *App) usage() {
	a.errOut.Printf(`adminctl - admin console for search queries, users and early-access requests

Usage:
  adminctl <command> [subcommand] [options]

Commands:
  login      [--email E] [--password P]       Sign in and store the session
  register   --email E [--first F --last L]   Create an account and sign in
  logout                                      Forget the stored session
  whoami                                      Show the signed-in account
  queries    list|no-results|stats|get        Inspect the search query log
  users      list|get                         Browse registered users
  requests   list|stats|get|update|delete|submit
                                              Manage early-access requests
  completion bash|zsh|fish [--install]        Print or install shell completion

Run "adminctl <command> <subcommand> -h" for options.
`)
}
