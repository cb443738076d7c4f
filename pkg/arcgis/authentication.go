package arcgis

import (
	"github.com/go-drift/arcgis/pkg/platform"
	"github.com/go-drift/arcgis/pkg/sdk"
)

// AuthenticationManagerController stores credentials for secured
// services. The feature service backend looks tokens up here.
type AuthenticationManagerController struct {
	channel     *platform.MethodChannel
	credentials *sdk.CredentialCache
}

func newAuthenticationManagerController(ctx *attachContext) (Controller, error) {
	c := &AuthenticationManagerController{
		channel:     ctx.channel(AuthenticationManagerChannel),
		credentials: ctx.credentials,
	}
	ctx.serve(c.channel, platform.SyncHandler(c.handleMethodCall))
	return c, nil
}

// Name implements Controller.
func (c *AuthenticationManagerController) Name() string { return AuthenticationManagerChannel }

// Dispose uninstalls the channel and clears stored credentials.
func (c *AuthenticationManagerController) Dispose() error {
	c.channel.SetMethodCallHandler(nil)
	c.credentials.Clear()
	return nil
}

func (c *AuthenticationManagerController) handleMethodCall(call platform.MethodCall) (any, error) {
	url := stringArg(call, "url")
	switch call.Method {
	case "setCredential":
		if url == "" {
			return nil, platform.InvalidArgs("setCredential requires url")
		}
		cred := sdk.Credential{
			URL:      url,
			Username: stringArg(call, "username"),
			Password: stringArg(call, "password"),
			Token:    stringArg(call, "token"),
		}
		if cred.Token == "" && cred.Username == "" {
			return nil, platform.InvalidArgs("setCredential requires token or username")
		}
		c.credentials.Add(cred)
		return nil, nil

	case "hasCredential":
		_, ok := c.credentials.Get(url)
		return ok, nil

	case "removeCredential":
		return c.credentials.Remove(url), nil

	case "clearCredentialCache":
		c.credentials.Clear()
		return nil, nil

	default:
		return nil, platform.ErrMethodNotFound
	}
}
