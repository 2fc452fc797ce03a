package idp

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/schoolhouse/pkg/apierrors"
	"github.com/platinummonkey/schoolhouse/pkg/observability"
)

type fakeCognito struct {
	createInput  *cognitoidentityprovider.AdminCreateUserInput
	setInput     *cognitoidentityprovider.AdminSetUserPasswordInput
	confirmInput *cognitoidentityprovider.ConfirmForgotPasswordInput
	err          error
}

func (f *fakeCognito) AdminCreateUser(_ context.Context, in *cognitoidentityprovider.AdminCreateUserInput, _ ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminCreateUserOutput, error) {
	f.createInput = in
	return &cognitoidentityprovider.AdminCreateUserOutput{}, f.err
}

func (f *fakeCognito) AdminSetUserPassword(_ context.Context, in *cognitoidentityprovider.AdminSetUserPasswordInput, _ ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminSetUserPasswordOutput, error) {
	f.setInput = in
	return &cognitoidentityprovider.AdminSetUserPasswordOutput{}, f.err
}

func (f *fakeCognito) ConfirmForgotPassword(_ context.Context, in *cognitoidentityprovider.ConfirmForgotPasswordInput, _ ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ConfirmForgotPasswordOutput, error) {
	f.confirmInput = in
	return &cognitoidentityprovider.ConfirmForgotPasswordOutput{}, f.err
}

func attr(attrs []types.AttributeType, name string) string {
	for _, a := range attrs {
		if aws.ToString(a.Name) == name {
			return aws.ToString(a.Value)
		}
	}
	return ""
}

func testConfig() CognitoConfig {
	return CognitoConfig{Region: "us-east-1", UserPoolID: "pool-1", ClientID: "client-1"}
}

func TestCognito_CreateAccount(t *testing.T) {
	fake := &fakeCognito{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	c := NewCognitoWithAPI(fake, testConfig(), metrics)

	err := c.CreateAccount(context.Background(), Account{
		UserID:            "u-1",
		Email:             "jane@example.com",
		FirstName:         "Jane",
		LastName:          "Doe",
		DistrictID:        "d-1",
		TemporaryPassword: "Temp123!",
	})
	require.NoError(t, err)

	in := fake.createInput
	require.NotNil(t, in)
	assert.Equal(t, "pool-1", aws.ToString(in.UserPoolId))
	assert.Equal(t, "u-1", aws.ToString(in.Username))
	assert.Equal(t, "Temp123!", aws.ToString(in.TemporaryPassword))
	assert.Equal(t, "jane@example.com", attr(in.UserAttributes, "email"))
	assert.Equal(t, "Jane", attr(in.UserAttributes, "given_name"))
	assert.Equal(t, "Doe", attr(in.UserAttributes, "family_name"))
	assert.Equal(t, "d-1", attr(in.UserAttributes, "custom:districtId"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IdentityProviderCallsTotal.WithLabelValues("create_account", "ok")))
}

func TestCognito_CreateAccountWithoutTemporaryPassword(t *testing.T) {
	fake := &fakeCognito{}
	require.NoError(t, NewCognitoWithAPI(fake, testConfig(), nil).CreateAccount(context.Background(), Account{UserID: "u"}))
	assert.Nil(t, fake.createInput.TemporaryPassword)
}

func TestCognito_SetPassword(t *testing.T) {
	fake := &fakeCognito{}
	require.NoError(t, NewCognitoWithAPI(fake, testConfig(), nil).SetPassword(context.Background(), "u-1", "12345678!Qa"))

	assert.Equal(t, "u-1", aws.ToString(fake.setInput.Username))
	assert.Equal(t, "12345678!Qa", aws.ToString(fake.setInput.Password))
	assert.True(t, fake.setInput.Permanent)
}

func TestCognito_ConfirmForgotPassword(t *testing.T) {
	t.Run("without client secret", func(t *testing.T) {
		fake := &fakeCognito{}
		require.NoError(t, NewCognitoWithAPI(fake, testConfig(), nil).ConfirmForgotPassword(context.Background(), "1:default", "123456", "12345678Qq?"))

		in := fake.confirmInput
		assert.Equal(t, "client-1", aws.ToString(in.ClientId))
		assert.Equal(t, "1:default", aws.ToString(in.Username))
		assert.Equal(t, "123456", aws.ToString(in.ConfirmationCode))
		assert.Nil(t, in.SecretHash)
	})

	t.Run("with client secret", func(t *testing.T) {
		fake := &fakeCognito{}
		cfg := testConfig()
		cfg.ClientSecret = "shh"
		require.NoError(t, NewCognitoWithAPI(fake, cfg, nil).ConfirmForgotPassword(context.Background(), "user", "1", "p"))
		assert.Equal(t, SecretHash("user", "client-1", "shh"), aws.ToString(fake.confirmInput.SecretHash))
	})
}

func TestSecretHash(t *testing.T) {
	h1 := SecretHash("user", "client", "secret")
	assert.Equal(t, h1, SecretHash("user", "client", "secret"))
	assert.NotEqual(t, h1, SecretHash("other", "client", "secret"))
	assert.Len(t, h1, 44)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apierrors.Kind
	}{
		{"username exists", &types.UsernameExistsException{Message: aws.String("exists")}, apierrors.KindConflict},
		{"invalid password", &types.InvalidPasswordException{Message: aws.String("weak")}, apierrors.KindValidation},
		{"invalid parameter", &types.InvalidParameterException{Message: aws.String("bad")}, apierrors.KindValidation},
		{"code mismatch", &types.CodeMismatchException{Message: aws.String("bad code")}, apierrors.KindValidation},
		{"expired code", &types.ExpiredCodeException{Message: aws.String("expired")}, apierrors.KindValidation},
		{"user not found", &types.UserNotFoundException{Message: aws.String("missing")}, apierrors.KindNotFound},
		{"other api error", &smithy.GenericAPIError{Code: "InternalErrorException", Message: "boom"}, apierrors.KindUpstream},
		{"network error", errors.New("dial tcp: timeout"), apierrors.KindUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError("op", tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.want, apierrors.KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.NoError(t, mapError("op", nil))
}

func TestCognito_ErrorsCounted(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	fake := &fakeCognito{err: &types.UsernameExistsException{Message: aws.String("exists")}}

	err := NewCognitoWithAPI(fake, testConfig(), metrics).CreateAccount(context.Background(), Account{UserID: "u"})
	assert.True(t, apierrors.Is(err, apierrors.KindConflict))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IdentityProviderCallsTotal.WithLabelValues("create_account", "conflict")))
}

func TestNewCognito_RequiresPool(t *testing.T) {
	_, err := NewCognito(context.Background(), CognitoConfig{Region: "us-east-1"}, nil)
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	var buf bytes.Buffer
	n := NewNoop(observability.NewLogger(observability.InfoLevel, &buf))
	ctx := context.Background()

	assert.NoError(t, n.CreateAccount(ctx, Account{UserID: "u", Email: "e@x.io"}))
	assert.NoError(t, n.SetPassword(ctx, "u", "p"))
	assert.NoError(t, n.ConfirmForgotPassword(ctx, "u", "c", "p"))
	assert.Contains(t, buf.String(), "create account")
}
