package guard

import (
	"fmt"
	"net/http"

	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RegisterAuthRoutes mounts the login, register and logout handlers.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	app.Get(controller.Routes.Login, controller.LoginShow).
		SetName("sign-in.get")
	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("sign-in.post")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(controller.Routes.Logout, controller.LogOut).
		SetName("sign-out.get")
	app.Post(controller.Routes.Logout, controller.LogOut).
		SetName("sign-out.post")

	return controller
}

type AuthControllerRoutes struct {
	Login    string
	Logout   string
	Register string
}

type AuthControllerViews struct {
	Login    string
	Register string
}

// ErrorHandler renders errors the controller cannot recover from.
type ErrorHandler func(router.Context, error) error

type AuthController struct {
	Debug        bool
	Logger       Logger
	Gateway      *AuthGateway
	Guard        *Guard
	Routes       *AuthControllerRoutes
	Views        *AuthControllerViews
	ErrorHandler ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

// WithControllerGateway sets the gateway the handlers call.
func WithControllerGateway(gateway *AuthGateway) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Gateway = gateway
		return c
	}
}

// WithControllerGuard sets the guard used to pick post login destinations.
func WithControllerGuard(guard *Guard) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Guard = guard
		return c
	}
}

// WithControllerLogger overrides the logger.
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerDebug dumps bound payloads.
func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AuthControllerRoutes{
			Login:    DefaultLoginPath,
			Logout:   DefaultLogoutPath,
			Register: DefaultRegisterPath,
		},
		Views: &AuthControllerViews{
			Login:    "login",
			Register: "register",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Gateway == nil {
		panic("Missing AuthGateway in auth controller...")
	}

	if c.Guard == nil {
		panic("Missing Guard in auth controller...")
	}

	return c
}

func (a *AuthController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors":   nil,
		"record":   nil,
		"redirect": a.returnPath(ctx),
	})
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginMessage)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	record := LoginMessage{Email: payload.Email}

	if err := payload.Validate(); err != nil {
		return ctx.Status(http.StatusBadRequest).Render(a.Views.Login, router.ViewContext{
			"record":     record,
			"validation": FormatValidationErrorToMap(err),
			"redirect":   a.returnPath(ctx),
		})
	}

	if a.Debug {
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(record))
		fmt.Println("=========================")
	}

	res := a.Gateway.Login(ctx.Context(), payload.Email, payload.Password)
	if !res.Success {
		return ctx.Status(statusForResult(res)).Render(a.Views.Login, router.ViewContext{
			"record":   record,
			"errors":   map[string]string{"authentication": res.Error},
			"redirect": a.returnPath(ctx),
		})
	}

	return a.redirectAfterAuthentication(ctx, res)
}

func (a *AuthController) RegistrationShow(ctx router.Context) error {
	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors":   map[string]string{},
		"record":   RegisterMessage{},
		"redirect": a.returnPath(ctx),
	})
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegisterMessage)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register user parse payload", "error", err)
		return ctx.Status(http.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": RegisterMessage{},
		})
	}

	record := *payload
	record.Password, record.ConfirmPassword = "", ""

	if err := payload.Validate(); err != nil {
		a.Logger.Info("register user validate payload", "error", err)
		return ctx.Status(http.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"record":     record,
			"validation": FormatValidationErrorToMap(err),
			"redirect":   a.returnPath(ctx),
		})
	}

	res := a.Gateway.Register(ctx.Context(), *payload)
	if !res.Success {
		return ctx.Status(statusForResult(res)).Render(a.Views.Register, router.ViewContext{
			"record":   record,
			"errors":   map[string]string{"registration": res.Error},
			"redirect": a.returnPath(ctx),
		})
	}

	return a.redirectAfterAuthentication(ctx, res)
}

func (a *AuthController) LogOut(ctx router.Context) error {
	a.Gateway.Logout(ctx.Context())
	return ctx.Redirect(a.Guard.Config().LoginPath, http.StatusSeeOther)
}

func (a *AuthController) redirectAfterAuthentication(ctx router.Context, res AuthResult) error {
	intent, ok := a.Guard.AfterAuthentication(res.Session, ctx.OriginalURL())
	if !ok {
		return ctx.Redirect(a.Guard.Config().LoginPath, http.StatusSeeOther)
	}
	a.Logger.Debug("redirecting after authentication", "target", intent.Target)
	return ctx.Redirect(intent.Target, http.StatusSeeOther)
}

func (a *AuthController) returnPath(ctx router.Context) string {
	ret, _ := ReturnPathFrom(ctx.OriginalURL(), a.Guard.Config().ReturnParam)
	return ret
}

func statusForResult(res AuthResult) int {
	switch {
	case IsCancelledError(res.Err):
		return http.StatusRequestTimeout
	case IsTransportError(res.Err):
		return http.StatusBadGateway
	case hasTextCode(res.Err, TextCodeValidation):
		return http.StatusBadRequest
	case IsRejectedError(res.Err):
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Status(http.StatusBadRequest).Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
