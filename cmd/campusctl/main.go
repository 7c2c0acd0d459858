// Command campusctl drives a campus backend session from the terminal. Credentials
// persist between invocations in the configured store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/common-nighthawk/go-figure"

	"github.com/jrsteele09/campus-auth-client/apiclient"
	"github.com/jrsteele09/campus-auth-client/credentials"
	"github.com/jrsteele09/campus-auth-client/internal/config"
	"github.com/jrsteele09/campus-auth-client/internal/logging"
	"github.com/jrsteele09/campus-auth-client/session"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, s *session.Session, args []string) error
}

var commands = []command{
	{"login", "log in: login -u <username> -p <password>", loginCmd},
	{"logout", "log out and forget the stored credentials", logoutCmd},
	{"whoami", "print the stored identity without contacting the backend", whoamiCmd},
	{"profile", "fetch the profile of the logged in user", profileCmd},
	{"enroll", "enroll a registered user: enroll -u <username> -secret <secret>", enrollCmd},
	{"register", "register a user (admin): register -admin <user> -admin-password <pw> -u <username> -p <password> -role <role> [-student-id <id>]", registerCmd},
	{"health", "check the backend is up", healthCmd},
	{"get", "authenticated GET of an API path: get /my-degrees", getCmd},
	{"post", "authenticated POST of a JSON body: post /degrees '{\"...\"}'", postCmd},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, ok := findCommand(os.Args[1])
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err := run(cmd, os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cmd command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := config.New()
	log := logging.New(c.GetLogLevel(), c.GetEnv())

	backend, closeBackend, err := openBackend(ctx, c, log)
	if err != nil {
		return err
	}
	defer closeBackend()

	store := credentials.NewStore(backend, credentials.WithLogger(log))
	exec := apiclient.NewExecutor(c.GetAPIBaseURL(), store,
		apiclient.WithLogger(log),
		apiclient.WithTimeout(c.GetRequestTimeout()),
		apiclient.WithUserAgent("campusctl"),
	)
	s := session.New(exec, store,
		session.WithLogger(log),
		session.WithForcedLogoutHandler(func(err error) {
			fmt.Fprintln(os.Stderr, "session expired, please log in again")
		}),
	)

	return cmd.run(ctx, s, args)
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage() {
	figure.NewFigure("campusctl", "cybermedium", true).Print()
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "usage: campusctl <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", c.name, c.summary)
	}
}
