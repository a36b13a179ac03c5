package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

var knownFlags = []string{
	"-a", "-g", "-d", "-s", "-t", "-r", "-m", "-k", "-l", "-f", "-o",
	"-smtp-host", "-smtp-port", "-smtp-user", "-smtp-password", "-mail-from",
}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   HTTP bind address (e.g., ":3000")
//	-g string   gRPC health bind address (e.g., ":50051")
//	-d string   credential store DSN ("", "memory", "sqlite:<path>", "postgres://...")
//	-s string   JWT HMAC secret key
//	-t int      session token validity, minutes
//	-r int      reset token validity, minutes
//	-m string   password hash algorithm ("bcrypt" or "argon2id")
//	-k int      password hash cost
//	-l int      minimum password length
//	-f string   frontend base URL used in reset links
//	-o int      request timeout, seconds
//	-smtp-host, -smtp-port, -smtp-user, -smtp-password, -mail-from
//
// args are filtered with flagx.FilterArgs first so -c/-config and flags of
// other components do not collide. Durations are given as whole minutes
// (seconds for -o) and converted to time.Duration.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to serve HTTP")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "address and port to serve gRPC health")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "credential store DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	sessionValidity := fs.Int("t", int(config.SessionTokenValidityDuration.Minutes()), "session_token_validity_duration (in minutes)")
	resetValidity := fs.Int("r", int(config.ResetTokenValidityDuration.Minutes()), "reset_token_validity_duration (in minutes)")

	fs.StringVar(&config.PasswordHashAlgorithm, "m", config.PasswordHashAlgorithm, "password hash algorithm")
	fs.IntVar(&config.PasswordHashCost, "k", config.PasswordHashCost, "password hash cost")
	fs.IntVar(&config.MinPasswordLength, "l", config.MinPasswordLength, "minimum password length")
	fs.StringVar(&config.FrontendURL, "f", config.FrontendURL, "frontend base URL")

	requestTimeout := fs.Int("o", int(config.RequestTimeout.Seconds()), "request timeout (in seconds)")

	fs.StringVar(&config.SMTPHost, "smtp-host", config.SMTPHost, "SMTP host")
	fs.IntVar(&config.SMTPPort, "smtp-port", config.SMTPPort, "SMTP port")
	fs.StringVar(&config.SMTPUser, "smtp-user", config.SMTPUser, "SMTP user")
	fs.StringVar(&config.SMTPPassword, "smtp-password", config.SMTPPassword, "SMTP password")
	fs.StringVar(&config.MailFrom, "mail-from", config.MailFrom, "sender address for reset mail")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionTokenValidityDuration = time.Duration(*sessionValidity) * time.Minute
	config.ResetTokenValidityDuration = time.Duration(*resetValidity) * time.Minute
	config.RequestTimeout = time.Duration(*requestTimeout) * time.Second
}
