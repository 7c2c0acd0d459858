package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/jrsteele09/campus-auth-client/apiclient"
	"github.com/jrsteele09/campus-auth-client/authmodel"
	"github.com/jrsteele09/campus-auth-client/credentials"
	"github.com/jrsteele09/campus-auth-client/session"
)

func loginCmd(ctx context.Context, s *session.Session, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *password == "" {
		return errors.New("login needs -u and -p")
	}

	resp, err := s.Login(ctx, *username, *password)
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s (%s)\n", resp.User.Username, resp.User.Role)
	return nil
}

func logoutCmd(ctx context.Context, s *session.Session, _ []string) error {
	s.Logout(ctx)
	fmt.Println("logged out")
	return nil
}

func whoamiCmd(_ context.Context, s *session.Session, _ []string) error {
	id, ok := s.CurrentIdentity()
	if !ok {
		return session.ErrNotAuthenticated
	}
	return printJSON(id)
}

func profileCmd(ctx context.Context, s *session.Session, _ []string) error {
	profile, err := s.Profile(ctx)
	if err != nil {
		return err
	}
	return printJSON(profile)
}

func enrollCmd(ctx context.Context, s *session.Session, args []string) error {
	fs := flag.NewFlagSet("enroll", flag.ContinueOnError)
	username := fs.String("u", "", "username")
	secret := fs.String("secret", "", "enrollment secret from registration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resp, err := s.Enroll(ctx, *username, *secret)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func registerCmd(ctx context.Context, s *session.Session, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	admin := fs.String("admin", "", "admin username")
	adminPassword := fs.String("admin-password", "", "admin password")
	username := fs.String("u", "", "new username")
	password := fs.String("p", "", "new user's password")
	role := fs.String("role", string(credentials.RoleStudent), "admin, student, reviewer or client")
	studentID := fs.String("student-id", "", "student id, required for students")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resp, err := s.Register(ctx,
		session.AdminCredentials{Username: *admin, Password: *adminPassword},
		authmodel.NewUser{
			Username:  *username,
			Password:  *password,
			Role:      credentials.ParseRole(*role),
			StudentID: *studentID,
		},
	)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func healthCmd(ctx context.Context, s *session.Session, _ []string) error {
	resp, err := s.Health(ctx)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func getCmd(ctx context.Context, s *session.Session, args []string) error {
	if len(args) != 1 {
		return errors.New("get needs exactly one path")
	}
	return doCall(ctx, s, apiclient.Request{Method: http.MethodGet, Path: args[0], RequiresAuth: true})
}

func postCmd(ctx context.Context, s *session.Session, args []string) error {
	if len(args) != 2 {
		return errors.New("post needs a path and a JSON body")
	}
	if !json.Valid([]byte(args[1])) {
		return errors.New("body is not valid JSON")
	}
	return doCall(ctx, s, apiclient.Request{
		Method:       http.MethodPost,
		Path:         args[0],
		Body:         json.RawMessage(args[1]),
		RequiresAuth: true,
	})
}

func doCall(ctx context.Context, s *session.Session, req apiclient.Request) error {
	raw, err := s.Do(ctx, req)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return printJSON(v)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
