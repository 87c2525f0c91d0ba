package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
	"sigs.k8s.io/yaml"

	"github.com/meshbed/testbed-manager/internal/client"
	"github.com/meshbed/testbed-manager/internal/tokens"
)

func NewCmdTokens() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage credential manager tokens",
	}
	cmd.AddCommand(NewCmdTokensRefresh())
	cmd.AddCommand(NewCmdTokensRevoke())
	cmd.AddCommand(NewCmdTokensList())
	return cmd
}

type TokensRefreshOptions struct {
	GlobalOptions

	RefreshToken string
	Output       string
}

func DefaultTokensRefreshOptions() *TokensRefreshOptions {
	return &TokensRefreshOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdTokensRefresh() *cobra.Command {
	o := DefaultTokensRefreshOptions()
	cmd := &cobra.Command{
		Use:     "refresh",
		Short:   "Rotate the token pair through the credential manager",
		Example: "  testbedctl tokens refresh --refresh-token <token> --project-id <id>",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *TokensRefreshOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.RefreshToken, "refresh-token", "r", o.RefreshToken, "Refresh token to rotate. Defaults to the one in the token file.")
	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *TokensRefreshOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if len(o.Output) > 0 && !funk.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}
	return nil
}

func (o *TokensRefreshOptions) Run(ctx context.Context, args []string) error {
	manager, err := tokens.NewManager(o.Credmgr(), tokens.Config{
		Path:         o.TokenFile,
		RefreshToken: o.RefreshToken,
		ProjectID:    o.ProjectID,
		ProjectName:  o.ProjectName,
		Scope:        o.Scope,
	})
	if err != nil {
		return fmt.Errorf("creating token manager: %w", err)
	}

	pair, err := manager.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refreshing tokens: %w", err)
	}

	switch o.Output {
	case jsonFormat:
		marshalled, err := json.Marshal(pair)
		if err != nil {
			return fmt.Errorf("marshalling tokens: %w", err)
		}
		fmt.Printf("%s\n", string(marshalled))
	case yamlFormat:
		marshalled, err := yaml.Marshal(pair)
		if err != nil {
			return fmt.Errorf("marshalling tokens: %w", err)
		}
		fmt.Printf("%s\n", string(marshalled))
	default:
		fmt.Printf("tokens refreshed, identity token expires at %s\n", pair.ExpiresAt)
		if o.TokenFile != "" {
			fmt.Printf("saved to %s\n", o.TokenFile)
		}
	}

	return nil
}

type TokensRevokeOptions struct {
	GlobalOptions

	TokenType string
	Token     string
}

func DefaultTokensRevokeOptions() *TokensRevokeOptions {
	return &TokensRevokeOptions{
		GlobalOptions: DefaultGlobalOptions(),

		TokenType: string(client.TokenTypeRefresh),
	}
}

func NewCmdTokensRevoke() *cobra.Command {
	o := DefaultTokensRevokeOptions()
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke an identity or refresh token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *TokensRevokeOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.TokenType, "type", "t", o.TokenType, "Type of the token to revoke. One of: (identity, refresh).")
	fs.StringVar(&o.Token, "token", o.Token, "Token to revoke. Defaults to the one in the token file.")
}

func (o *TokensRevokeOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if !funk.Contains([]string{string(client.TokenTypeIdentity), string(client.TokenTypeRefresh)}, o.TokenType) {
		return fmt.Errorf("token type must be one of identity, refresh")
	}
	return nil
}

func (o *TokensRevokeOptions) Run(ctx context.Context, args []string) error {
	manager, err := o.TokenManager()
	if err != nil {
		return fmt.Errorf("creating token manager: %w", err)
	}

	target := o.Token
	if target == "" {
		current := manager.Tokens()
		if o.TokenType == string(client.TokenTypeRefresh) {
			target = current.RefreshToken
		} else {
			target = current.IDToken
		}
	}
	if target == "" {
		return fmt.Errorf("no %s token to revoke", o.TokenType)
	}

	idToken, err := manager.EnsureValidToken(ctx)
	if err != nil {
		return fmt.Errorf("obtaining identity token: %w", err)
	}

	if err := o.Credmgr().Revoke(ctx, idToken, client.TokenType(o.TokenType), target); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}

	fmt.Println("token revoked")
	return nil
}

type TokensListOptions struct {
	GlobalOptions

	Limit  int
	Offset int
	States []string
	Output string
}

func DefaultTokensListOptions() *TokensListOptions {
	return &TokensListOptions{
		GlobalOptions: DefaultGlobalOptions(),

		Output: tableFormat,
	}
}

func NewCmdTokensList() *cobra.Command {
	o := DefaultTokensListOptions()
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the caller's issued tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *TokensListOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.IntVarP(&o.Limit, "limit", "l", o.Limit, "Maximum number of tokens to list.")
	fs.IntVar(&o.Offset, "offset", o.Offset, "Number of tokens to skip.")
	fs.StringSliceVar(&o.States, "state", o.States, "Filter by token state. May be repeated.")
	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *TokensListOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if len(o.Output) > 0 && !funk.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}
	if o.Limit < 0 || o.Offset < 0 {
		return fmt.Errorf("limit and offset must not be negative")
	}
	return nil
}

func (o *TokensListOptions) Run(ctx context.Context, args []string) error {
	idToken, err := o.identityToken(ctx)
	if err != nil {
		return err
	}

	issued, err := o.Credmgr().Tokens(ctx, idToken, client.ListTokensOptions{
		Limit:  o.Limit,
		Offset: o.Offset,
		States: o.States,
	})
	if err != nil {
		return fmt.Errorf("listing tokens: %w", err)
	}

	switch o.Output {
	case jsonFormat:
		marshalled, err := json.Marshal(issued)
		if err != nil {
			return fmt.Errorf("marshalling tokens: %w", err)
		}
		fmt.Printf("%s\n", string(marshalled))
	case yamlFormat:
		marshalled, err := yaml.Marshal(issued)
		if err != nil {
			return fmt.Errorf("marshalling tokens: %w", err)
		}
		fmt.Printf("%s\n", string(marshalled))
	default:
		w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
		fmt.Fprintln(w, "HASH\tSTATE\tCREATED\tEXPIRES\tCOMMENT")
		for _, t := range issued {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.TokenHash, t.State, t.CreatedAt, t.ExpiresAt, t.Comment)
		}
		w.Flush()
	}

	return nil
}
