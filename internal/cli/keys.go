package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ceyewan/gacha/auth"
)

// NewKeygenCommand 创建 keygen 命令
func NewKeygenCommand() *cobra.Command {
	var (
		out  string
		bits int
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an RSA key pair for token signing",
		Long: `Write private.pem and public.pem into --out.

Services only need public.pem (auth.public_key_path); keep private.pem with
the identity provider or use it with "gacha token" for local testing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			priv, pub, err := auth.WriteKeyPair(out, bits)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "private key: %s\npublic key:  %s\n", priv, pub)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "keys", "output directory")
	cmd.Flags().IntVar(&bits, "bits", 2048, "RSA key size")
	return cmd
}

// TokenOptions token 命令参数
type TokenOptions struct {
	KeyPath  string
	Subject  string
	Audience string
	TTL      time.Duration
}

// NewTokenCommand 创建 token 命令
func NewTokenCommand() *cobra.Command {
	opts := &TokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an RS256 token for local testing",
		Long: `Print a signed token to stdout.

Example:
  gacha token --key keys/private.pem --sub alice --aud profile_setting --ttl 15m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := auth.LoadPrivateKey(opts.KeyPath)
			if err != nil {
				return err
			}
			token, err := auth.NewSigner(key).Sign(opts.Subject, opts.Audience, opts.TTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.KeyPath, "key", "keys/private.pem", "path to the RSA private key")
	cmd.Flags().StringVar(&opts.Subject, "sub", "", "token subject, the username (required)")
	cmd.Flags().StringVar(&opts.Audience, "aud", auth.AudienceProfile,
		fmt.Sprintf("token audience (%s|%s)", auth.AudienceProfile, auth.AudiencePayment))
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 15*time.Minute, "token lifetime, 0 for no expiry")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}
