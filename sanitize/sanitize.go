// Package sanitize validates request and response documents exchanged over
// a session transport, mirroring the protocol's wire schema rather than any
// particular transport's framing.
package sanitize

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	verbPattern          = regexp.MustCompile(`^[A-Z]+$`)
	clientTokenPattern   = regexp.MustCompile(`^[0-9a-zA-Z_-]{255}$`)
	containerSHAPattern  = regexp.MustCompile(`^[a-f0-9]{64}$`)
	containerUserPattern = regexp.MustCompile(`^user_[0-9]{5}$`)
	containerPassPattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

var (
	validate     *validator.Validate
	registerOnce sync.Once
)

// v returns the package-wide validator instance, registering the custom tag
// functions the schema needs (canonical UUID form, exact-length client
// token, hex digest, etc.) on first use.
func v() *validator.Validate {
	registerOnce.Do(func() {
		validate = validator.New()
		register := func(tag string, re *regexp.Regexp) {
			validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
				return re.MatchString(fl.Field().String())
			})
		}
		register("verbpattern", verbPattern)
		register("clienttoken", clientTokenPattern)
		register("containersha256", containerSHAPattern)
		register("containerusername", containerUserPattern)
		register("containerpassword", containerPassPattern)
		validate.RegisterValidation("canonicaluuid", func(fl validator.FieldLevel) bool {
			return isCanonicalUUID(fl.Field().String())
		})
	})
	return validate
}

// FieldErrors reports field names to human-readable validation failure
// messages. A nil/empty FieldErrors means validation succeeded.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	return fmt.Sprintf("sanitize: %d field error(s)", len(e))
}

// Request is the validated, passthrough-preserving form of a client request.
type Request struct {
	Verb       string         `json:"verb"`
	Parameters map[string]any `json:"parameters"`
}

// Response is the validated, passthrough-preserving form of a server response.
type Response struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// requestDoc is the struct validator/v10 walks to enforce verb shape and the
// container_uuid/client_token co-requirement within Parameters.
type requestDoc struct {
	Verb          string  `validate:"required,verbpattern"`
	ContainerUUID *string `validate:"required_with=ClientToken,omitempty,canonicaluuid"`
	ClientToken   *string `validate:"required_with=ContainerUUID,omitempty,clienttoken"`
}

// MakeRequest validates verb and parameters, returning the normalized
// document on success. Unknown keys in parameters pass through unmodified.
func MakeRequest(verb string, parameters map[string]any) (bool, Request, FieldErrors) {
	if parameters == nil {
		parameters = map[string]any{}
	}

	doc := requestDoc{Verb: verb}
	if s, ok := asOptionalString(parameters["container_uuid"]); ok {
		doc.ContainerUUID = s
	}
	if s, ok := asOptionalString(parameters["client_token"]); ok {
		doc.ClientToken = s
	}

	if err := v().Struct(doc); err != nil {
		return false, Request{}, fieldErrorsFromValidator(err, map[string]string{
			"Verb":          "verb",
			"ContainerUUID": "container_uuid",
			"ClientToken":   "client_token",
		})
	}

	return true, Request{Verb: verb, Parameters: parameters}, nil
}

// responseEnvelope carries the three top-level response fields; the bundle
// structs below validate the contents of Data separately since validator/v10
// struct tags operate on fixed fields, not an arbitrary map.
type responseEnvelope struct {
	Success *bool          `validate:"required"`
	Message *string        `validate:"required"`
	Data    map[string]any `validate:"required"`
}

// sessionBundleDoc mirrors the original schema's six mutually-dependent
// session fields: required_with lists every sibling so that the presence of
// any one forces the presence of all the others.
type sessionBundleDoc struct {
	ContainerUUID       *string `validate:"required_with=ClientToken ContainerISOSHA256 ContainerUsername ContainerPassword ContainerListenPort,omitempty,canonicaluuid"`
	ClientToken         *string `validate:"required_with=ContainerUUID ContainerISOSHA256 ContainerUsername ContainerPassword ContainerListenPort,omitempty,clienttoken"`
	ContainerISOSHA256  *string `validate:"required_with=ContainerUUID ClientToken ContainerUsername ContainerPassword ContainerListenPort,omitempty,containersha256"`
	ContainerUsername   *string `validate:"required_with=ContainerUUID ClientToken ContainerISOSHA256 ContainerPassword ContainerListenPort,omitempty,containerusername"`
	ContainerPassword   *string `validate:"required_with=ContainerUUID ClientToken ContainerISOSHA256 ContainerUsername ContainerListenPort,omitempty,containerpassword"`
	ContainerListenPort *int    `validate:"required_with=ContainerUUID ClientToken ContainerISOSHA256 ContainerUsername ContainerPassword,omitempty,min=1,max=65535"`
}

var sessionBundleFieldNames = map[string]string{
	"ContainerUUID":       "container_uuid",
	"ClientToken":         "client_token",
	"ContainerISOSHA256":  "container_iso_sha256",
	"ContainerUsername":   "container_username",
	"ContainerPassword":   "container_password",
	"ContainerListenPort": "container_listen_port",
}

// statBundleDoc mirrors the original schema's two mutually-dependent stat
// fields. The distilled specification names the pair uptime/version; the
// uptime/available pairing appears only in the pre-distillation source.
type statBundleDoc struct {
	Uptime  *int    `validate:"required_with=Version,omitempty,min=0"`
	Version *string `validate:"required_with=Uptime"`
}

var statBundleFieldNames = map[string]string{
	"Uptime":  "uptime",
	"Version": "version",
}

// VerifyResponse validates a raw decoded response document: success/message
// required at the top level, data required as a map, and within data the
// session bundle and the stat bundle each co-required as a unit. Extra keys
// inside data survive untouched in the returned document; extra top-level
// keys are not carried into the returned Response.
func VerifyResponse(raw map[string]any) (bool, Response, FieldErrors) {
	errs := FieldErrors{}

	successVal, successOK := raw["success"].(bool)
	if _, present := raw["success"]; present && !successOK {
		errs["success"] = "must be a boolean"
	}
	messageVal, messageOK := raw["message"].(string)
	if _, present := raw["message"]; present && !messageOK {
		errs["message"] = "must be a string"
	}
	dataRaw, dataPresent := raw["data"]
	data, dataOK := dataRaw.(map[string]any)
	if dataPresent && !dataOK {
		errs["data"] = "must be an object"
	}

	env := responseEnvelope{Data: data}
	if successOK {
		env.Success = &successVal
	}
	if messageOK {
		env.Message = &messageVal
	}
	if err := v().Struct(env); err != nil {
		for field, msg := range fieldErrorsFromValidator(err, map[string]string{
			"Success": "success",
			"Message": "message",
			"Data":    "data",
		}) {
			errs[field] = msg
		}
	}

	if len(errs) > 0 {
		return false, Response{}, errs
	}

	sessionDoc := sessionBundleDoc{
		ContainerUUID:      mustOptionalString(data, "container_uuid"),
		ClientToken:        mustOptionalString(data, "client_token"),
		ContainerISOSHA256: mustOptionalString(data, "container_iso_sha256"),
		ContainerUsername:  mustOptionalString(data, "container_username"),
		ContainerPassword:  mustOptionalString(data, "container_password"),
	}
	if p, ok := asOptionalInt(data["container_listen_port"]); ok {
		sessionDoc.ContainerListenPort = p
	}
	if err := v().Struct(sessionDoc); err != nil {
		for field, msg := range fieldErrorsFromValidator(err, sessionBundleFieldNames) {
			errs[field] = msg
		}
	}

	statDoc := statBundleDoc{Version: mustOptionalString(data, "version")}
	if u, ok := asOptionalInt(data["uptime"]); ok {
		statDoc.Uptime = u
	}
	if err := v().Struct(statDoc); err != nil {
		for field, msg := range fieldErrorsFromValidator(err, statBundleFieldNames) {
			errs[field] = msg
		}
	}

	if len(errs) > 0 {
		return false, Response{}, errs
	}

	return true, Response{Success: successVal, Message: messageVal, Data: data}, nil
}

func asOptionalString(v any) (*string, bool) {
	if v == nil {
		return nil, false
	}
	s, ok := v.(string)
	if !ok {
		bogus := "\x00invalid"
		return &bogus, true
	}
	return &s, true
}

func mustOptionalString(data map[string]any, key string) *string {
	v, ok := asOptionalString(data[key])
	if !ok {
		return nil
	}
	return v
}

func asOptionalInt(v any) (*int, bool) {
	if v == nil {
		return nil, false
	}
	switch n := v.(type) {
	case int:
		return &n, true
	case int64:
		i := int(n)
		return &i, true
	case float64:
		i := int(n)
		if float64(i) != n {
			bogus := -1 << 31
			return &bogus, true
		}
		return &i, true
	default:
		bogus := -1 << 31
		return &bogus, true
	}
}

func fieldErrorsFromValidator(err error, names map[string]string) FieldErrors {
	out := FieldErrors{}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		out["_"] = err.Error()
		return out
	}
	for _, fe := range verrs {
		name, ok := names[fe.StructField()]
		if !ok {
			name = fe.StructField()
		}
		out[name] = fmt.Sprintf("failed on the %q rule", fe.Tag())
	}
	return out
}

func isCanonicalUUID(s string) bool {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return parsed.String() == s
}
