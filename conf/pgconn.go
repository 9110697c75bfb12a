package conf

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretFunc returns the plain value of a named secret.
type SecretFunc func(ctx context.Context, secretName string) (string, error)

// databaseURL resolves the relational connection string. DATABASE_URL and
// its hosting-provider aliases win; otherwise the url is composed from the
// POSTGRES_* parts, reading the password from AWS Secrets Manager when the
// database is not local. Returns "" when nothing is configured.
func databaseURL(ctx context.Context, getenv Env, secrets SecretFunc) (string, error) {
	for _, key := range []string{"DATABASE_URL", "POSTGRES_URL", "POSTGRES_URL_NON_POOLING"} {
		if v := getenv(key); v != "" {
			return v, nil
		}
	}

	host := getenv("POSTGRES_HOST")
	if host == "" {
		return "", nil
	}
	var pw string
	secretName := getenv("POSTGRES_PASSWORD_SECRET_NAME")
	if host == "localhost" || secretName == "" {
		pw = getenv("POSTGRES_PW")
	} else {
		secretValue, err := secrets(ctx, secretName)
		if err != nil {
			return "", fmt.Errorf("failed to get postgres password from AWS: %w", err)
		}
		var secret struct {
			Password string `json:"password"`
		}
		if err := json.Unmarshal([]byte(secretValue), &secret); err != nil {
			return "", fmt.Errorf("failed to parse postgres password secret: %w", err)
		}
		pw = secret.Password
	}

	port := getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(getenv("POSTGRES_USER"), pw),
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + getenv("POSTGRES_DB"),
	}
	if ssl := getenv("POSTGRES_SSLMODE"); ssl != "" {
		u.RawQuery = url.Values{"sslmode": {ssl}}.Encode()
	}
	return u.String(), nil
}

// GetSecretFromAWS reads a secret string with the default AWS credential chain.
func GetSecretFromAWS(ctx context.Context, secretName string) (string, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return "", err
	}
	svc := secretsmanager.NewFromConfig(cfg)
	input := &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	result, err := svc.GetSecretValue(ctx, input)
	if err != nil {
		return "", err
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", secretName)
	}
	return *result.SecretString, nil
}
