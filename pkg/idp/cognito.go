package idp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"

	"github.com/platinummonkey/schoolhouse/pkg/apierrors"
	"github.com/platinummonkey/schoolhouse/pkg/observability"
)

// CognitoAPI is the subset of the Cognito user pool API the provider calls
type CognitoAPI interface {
	AdminCreateUser(ctx context.Context, params *cognitoidentityprovider.AdminCreateUserInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminCreateUserOutput, error)
	AdminSetUserPassword(ctx context.Context, params *cognitoidentityprovider.AdminSetUserPasswordInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminSetUserPasswordOutput, error)
	ConfirmForgotPassword(ctx context.Context, params *cognitoidentityprovider.ConfirmForgotPasswordInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ConfirmForgotPasswordOutput, error)
}

// CognitoConfig holds the user pool settings
type CognitoConfig struct {
	Region          string
	UserPoolID      string
	ClientID        string
	ClientSecret    string
	Endpoint        string // optional, for local emulators
	AccessKeyID     string // optional static credentials
	SecretAccessKey string
}

// Cognito implements Provider against an AWS Cognito user pool
type Cognito struct {
	api     CognitoAPI
	cfg     CognitoConfig
	metrics *observability.Metrics
}

// NewCognito loads AWS configuration and creates a Cognito provider
func NewCognito(ctx context.Context, cfg CognitoConfig, metrics *observability.Metrics) (*Cognito, error) {
	if cfg.UserPoolID == "" || cfg.ClientID == "" {
		return nil, fmt.Errorf("cognito user pool id and client id are required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := cognitoidentityprovider.NewFromConfig(awsCfg, func(o *cognitoidentityprovider.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewCognitoWithAPI(client, cfg, metrics), nil
}

// NewCognitoWithAPI creates a provider over an existing client
func NewCognitoWithAPI(api CognitoAPI, cfg CognitoConfig, metrics *observability.Metrics) *Cognito {
	return &Cognito{api: api, cfg: cfg, metrics: metrics}
}

// CreateAccount creates the login. Without a temporary password Cognito
// generates one and emails it.
func (c *Cognito) CreateAccount(ctx context.Context, account Account) error {
	input := &cognitoidentityprovider.AdminCreateUserInput{
		UserPoolId: aws.String(c.cfg.UserPoolID),
		Username:   aws.String(account.UserID),
		UserAttributes: []types.AttributeType{
			{Name: aws.String("email"), Value: aws.String(account.Email)},
			{Name: aws.String("email_verified"), Value: aws.String("true")},
			{Name: aws.String("given_name"), Value: aws.String(account.FirstName)},
			{Name: aws.String("family_name"), Value: aws.String(account.LastName)},
			{Name: aws.String("custom:districtId"), Value: aws.String(account.DistrictID)},
		},
		DesiredDeliveryMediums: []types.DeliveryMediumType{types.DeliveryMediumTypeEmail},
	}
	if account.TemporaryPassword != "" {
		input.TemporaryPassword = aws.String(account.TemporaryPassword)
	}

	_, err := c.api.AdminCreateUser(ctx, input)
	return c.result("create_account", err)
}

// SetPassword sets a permanent password, confirming the account
func (c *Cognito) SetPassword(ctx context.Context, username, password string) error {
	_, err := c.api.AdminSetUserPassword(ctx, &cognitoidentityprovider.AdminSetUserPasswordInput{
		UserPoolId: aws.String(c.cfg.UserPoolID),
		Username:   aws.String(username),
		Password:   aws.String(password),
		Permanent:  true,
	})
	return c.result("set_password", err)
}

// ConfirmForgotPassword completes a reset started by the user
func (c *Cognito) ConfirmForgotPassword(ctx context.Context, username, code, password string) error {
	input := &cognitoidentityprovider.ConfirmForgotPasswordInput{
		ClientId:         aws.String(c.cfg.ClientID),
		Username:         aws.String(username),
		ConfirmationCode: aws.String(code),
		Password:         aws.String(password),
	}
	if c.cfg.ClientSecret != "" {
		input.SecretHash = aws.String(SecretHash(username, c.cfg.ClientID, c.cfg.ClientSecret))
	}

	_, err := c.api.ConfirmForgotPassword(ctx, input)
	return c.result("confirm_forgot_password", err)
}

func (c *Cognito) result(operation string, err error) error {
	mapped := mapError(operation, err)
	if c.metrics != nil {
		outcome := "ok"
		if mapped != nil {
			outcome = string(apierrors.KindOf(mapped))
		}
		c.metrics.IdentityProviderCallsTotal.WithLabelValues(operation, outcome).Inc()
	}
	return mapped
}

// SecretHash computes the SECRET_HASH Cognito requires for app clients
// with a secret
func SecretHash(username, clientID, clientSecret string) string {
	mac := hmac.New(sha256.New, []byte(clientSecret))
	mac.Write([]byte(username + clientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func mapError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var (
		usernameExists   *types.UsernameExistsException
		invalidPassword  *types.InvalidPasswordException
		invalidParameter *types.InvalidParameterException
		codeMismatch     *types.CodeMismatchException
		expiredCode      *types.ExpiredCodeException
		userNotFound     *types.UserNotFoundException
	)
	switch {
	case errors.As(err, &usernameExists):
		return apierrors.Wrap(apierrors.KindConflict, "account already exists", err)
	case errors.As(err, &invalidPassword):
		return apierrors.Wrap(apierrors.KindValidation, "password does not meet the policy", err)
	case errors.As(err, &invalidParameter):
		return apierrors.Wrap(apierrors.KindValidation, "invalid identity provider parameter", err)
	case errors.As(err, &codeMismatch):
		return apierrors.Wrap(apierrors.KindValidation, "invalid confirmation code", err)
	case errors.As(err, &expiredCode):
		return apierrors.Wrap(apierrors.KindValidation, "confirmation code expired", err)
	case errors.As(err, &userNotFound):
		return apierrors.Wrap(apierrors.KindNotFound, "account not found", err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apierrors.Upstream("identity provider call failed", fmt.Errorf("%s: %s: %w", operation, apiErr.ErrorCode(), err))
	}
	return apierrors.Upstream("identity provider call failed", fmt.Errorf("%s: %w", operation, err))
}
