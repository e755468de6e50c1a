package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"Soundy/client"
	"Soundy/db"
	"Soundy/logger"
	"Soundy/model"
	"Soundy/services"
	"Soundy/session"

	"github.com/spf13/cobra"
)

// sessionEnv is the client side of the process: the session state, the REST client over it and
// the services built on the client.
type sessionEnv struct {
	state    *session.State
	client   *client.Client
	services *services.Services
	closers  []func() error
}

func (e *sessionEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			logger.Warn("[CLI] 释放资源失败", logger.ErrorField(err))
		}
	}
}

func newSessionEnv() (*sessionEnv, error) {
	env := &sessionEnv{}

	var store session.Store
	switch cfg.SessionStore {
	case "file":
		store = session.NewFileStore(cfg.SessionFile)
	case "redis":
		rdb, err := db.ConnectRedis(cfg)
		if err != nil {
			return nil, err
		}
		env.closers = append(env.closers, rdb.Close)
		store = session.NewRedisStore(rdb, cfg.SessionRedisKey)
	case "memory":
		store = session.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
	}

	env.state = session.NewState(store)
	env.client = client.New(cfg.APIURL, env.state,
		client.WithTimeout(cfg.HTTPTimeout),
		client.WithRefreshTimeout(cfg.RefreshTimeout),
		client.WithUserAgent("soundy-cli"),
	)
	env.services = services.New(env.client)
	return env, nil
}

// readPassword falls back to one line of stdin so passwords stay out of the shell history.
func readPassword(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var (
	loginUsername string
	loginPassword string
	registerEmail string
	registerBio   string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "登录并保存会话",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if loginUsername == "" {
			return errors.New("--username is required")
		}
		password, err := readPassword(loginPassword)
		if err != nil {
			return err
		}

		env, err := newSessionEnv()
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := env.services.Auth.Login(cmd.Context(), loginUsername, password)
		if err != nil {
			return err
		}
		fmt.Printf("Logged in as %s (%s)\n", loginUsername, resp.UserID)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "注册新账号并登录",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if loginUsername == "" || registerEmail == "" {
			return errors.New("--username and --email are required")
		}
		password, err := readPassword(loginPassword)
		if err != nil {
			return err
		}

		env, err := newSessionEnv()
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := env.services.Auth.Register(cmd.Context(), model.RegisterRequest{
			Username: loginUsername,
			Email:    registerEmail,
			Password: password,
			Bio:      registerBio,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Registered %s (%s)\n", loginUsername, resp.UserID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "注销并清除本地会话",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newSessionEnv()
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := env.state.Restore(cmd.Context()); err != nil {
			return err
		}
		return env.services.Auth.Logout(cmd.Context())
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "显示当前登录用户",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newSessionEnv()
		if err != nil {
			return err
		}
		defer env.Close()

		user, err := env.services.Auth.Restore(cmd.Context())
		if err != nil {
			return err
		}
		if user == nil {
			fmt.Println("Not logged in")
			return nil
		}
		return printJSON(user)
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVarP(&loginUsername, "username", "u", "", "用户名")
		c.Flags().StringVarP(&loginPassword, "password", "p", "", "密码，留空时从标准输入读取")
	}
	registerCmd.Flags().StringVarP(&registerEmail, "email", "e", "", "邮箱")
	registerCmd.Flags().StringVar(&registerBio, "bio", "", "个人简介")

	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd)
}

// restoreSession loads the persisted session for long-running commands. A missing session is not
// an error; the remote API can log in later.
func restoreSession(ctx context.Context, env *sessionEnv) {
	user, err := env.services.Auth.Restore(ctx)
	switch {
	case err != nil:
		logger.Warn("[CLI] 会话恢复失败，需要重新登录", logger.ErrorField(err))
	case user == nil:
		logger.Info("[CLI] 未登录，可通过远程接口登录")
	default:
		logger.Info("[CLI] 已登录", logger.String("userId", user.ID), logger.String("username", user.Name))
	}
}
