// Package valves resolves the layered runtime configuration that steers a
// pipeline run. Each run works against one immutable snapshot; layers are
// consulted per valve in precedence order: request override, process
// environment, file defaults, compiled defaults.
package valves

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/chronolens/chronolens/internal/domain"
)

// Valve names, accepted as request overrides, environment keys, and file
// default keys alike.
const (
	NameLLMAPIBaseURL    = "LLM_API_BASE_URL"
	NameLLMAPIKey        = "LLM_API_KEY"
	NameToolModel        = "TOOL_MODEL"
	NameResponseModel    = "RESPONSE_MODEL"
	NameIndexURL         = "CHRONOLENS_INDEX_URL"
	NameForceToolCalling = "FORCE_TOOL_CALLING"
	NameGetResponse      = "GET_RESPONSE"
	NameUTCOffset        = "DEFAULT_UTC_OFFSET"
	NameDockerMode       = "DOCKER_MODE"
	NameContextBudget    = "CONTEXT_BUDGET"
)

// Compiled defaults. The two URL defaults depend on DOCKER_MODE: inside a
// container the host services are reached via host.docker.internal.
const (
	defaultToolModel     = "Llama-3.1-70B"
	defaultResponseModel = "sambanova-llama-8b"
	defaultLLMAPIKey     = "api-key"
	defaultUTCOffset     = -7
	defaultDockerMode    = true
	defaultBudget        = 8000

	llmPort   = "4000"
	indexPort = "3030"
)

// envIndirection marks a valve value that names an environment variable
// instead of carrying the secret itself.
const envIndirection = "env."

// Valves is one resolved, immutable runtime configuration snapshot.
type Valves struct {
	llmAPIBaseURL    string
	llmAPIKey        string
	toolModel        string
	responseModel    string
	indexURL         string
	forceToolCalling bool
	getResponse      bool
	utcOffset        float64
	dockerMode       bool
	contextBudget    int
}

// LLMAPIBaseURL returns the OpenAI-compatible API base URL.
func (v Valves) LLMAPIBaseURL() string { return v.llmAPIBaseURL }

// LLMAPIKey returns the model API key.
func (v Valves) LLMAPIKey() string { return v.llmAPIKey }

// ToolModel returns the model used for structured query extraction.
func (v Valves) ToolModel() string { return v.toolModel }

// ResponseModel returns the model used for the final answer.
func (v Valves) ResponseModel() string { return v.responseModel }

// IndexURL returns the activity index base URL.
func (v Valves) IndexURL() string { return v.indexURL }

// ForceToolCalling reports whether the extraction model must call the tool.
func (v Valves) ForceToolCalling() bool { return v.forceToolCalling }

// GetResponse reports whether runs produce a model answer. When false, runs
// return the retrieved context itself.
func (v Valves) GetResponse() bool { return v.getResponse }

// UTCOffset returns the display timezone as fractional hours from UTC.
func (v Valves) UTCOffset() float64 { return v.utcOffset }

// DockerMode reports whether host services are addressed through the
// container gateway.
func (v Valves) DockerMode() bool { return v.dockerMode }

// ContextBudget returns the character budget for the injected context block.
func (v Valves) ContextBudget() int { return v.contextBudget }

// Names lists every known valve name.
func Names() []string {
	return []string{
		NameLLMAPIBaseURL, NameLLMAPIKey, NameToolModel, NameResponseModel,
		NameIndexURL, NameForceToolCalling, NameGetResponse, NameUTCOffset,
		NameDockerMode, NameContextBudget,
	}
}

// Snapshot returns the snapshot as a name→value map, API key redacted.
func (v Valves) Snapshot() map[string]string {
	return map[string]string{
		NameLLMAPIBaseURL:    v.llmAPIBaseURL,
		NameLLMAPIKey:        redact(v.llmAPIKey),
		NameToolModel:        v.toolModel,
		NameResponseModel:    v.responseModel,
		NameIndexURL:         v.indexURL,
		NameForceToolCalling: strconv.FormatBool(v.forceToolCalling),
		NameGetResponse:      strconv.FormatBool(v.getResponse),
		NameUTCOffset:        strconv.FormatFloat(v.utcOffset, 'f', -1, 64),
		NameDockerMode:       strconv.FormatBool(v.dockerMode),
		NameContextBudget:    strconv.Itoa(v.contextBudget),
	}
}

func redact(key string) string {
	if key == "" {
		return ""
	}
	return "********"
}

// layers is the ordered lookup chain for one resolution.
type layers struct {
	overrides map[string]string
	env       func(string) (string, bool)
	file      map[string]string
}

// get returns the highest-precedence value set for name.
func (l layers) get(name string) (string, bool) {
	if v, ok := l.overrides[name]; ok {
		return v, true
	}
	if v, ok := l.env(name); ok {
		return v, true
	}
	if v, ok := l.file[name]; ok {
		return v, true
	}
	return "", false
}

// resolve layers and validates one snapshot. Any invalid value fails the
// whole resolution so a bad valve never reaches the network.
func resolve(l layers) (Valves, error) {
	for name := range l.overrides {
		if !knownName(name) {
			return Valves{}, domain.NewValveError(name, "unknown valve")
		}
	}

	v := Valves{
		llmAPIKey:     defaultLLMAPIKey,
		toolModel:     defaultToolModel,
		responseModel: defaultResponseModel,
		utcOffset:     defaultUTCOffset,
		dockerMode:    defaultDockerMode,
		contextBudget: defaultBudget,
	}

	// DOCKER_MODE first: the compiled URL defaults depend on it.
	if raw, ok := l.get(NameDockerMode); ok {
		b, err := parseBool(raw)
		if err != nil {
			return Valves{}, domain.NewValveError(NameDockerMode, err.Error())
		}
		v.dockerMode = b
	}
	host := "http://localhost"
	if v.dockerMode {
		host = "http://host.docker.internal"
	}
	v.llmAPIBaseURL = host + ":" + llmPort + "/v1"
	v.indexURL = host + ":" + indexPort

	if raw, ok := l.get(NameLLMAPIBaseURL); ok {
		if err := validateURL(raw); err != nil {
			return Valves{}, domain.NewValveError(NameLLMAPIBaseURL, err.Error())
		}
		v.llmAPIBaseURL = strings.TrimRight(raw, "/")
	}
	if raw, ok := l.get(NameIndexURL); ok {
		if err := validateURL(raw); err != nil {
			return Valves{}, domain.NewValveError(NameIndexURL, err.Error())
		}
		v.indexURL = strings.TrimRight(raw, "/")
	}
	if raw, ok := l.get(NameLLMAPIKey); ok {
		v.llmAPIKey = l.dereference(raw)
	}
	if raw, ok := l.get(NameToolModel); ok {
		if raw == "" {
			return Valves{}, domain.NewValveError(NameToolModel, "must not be empty")
		}
		v.toolModel = raw
	}
	if raw, ok := l.get(NameResponseModel); ok {
		if raw == "" {
			return Valves{}, domain.NewValveError(NameResponseModel, "must not be empty")
		}
		v.responseModel = raw
	}
	if raw, ok := l.get(NameForceToolCalling); ok {
		b, err := parseBool(raw)
		if err != nil {
			return Valves{}, domain.NewValveError(NameForceToolCalling, err.Error())
		}
		v.forceToolCalling = b
	}
	if raw, ok := l.get(NameGetResponse); ok {
		b, err := parseBool(raw)
		if err != nil {
			return Valves{}, domain.NewValveError(NameGetResponse, err.Error())
		}
		v.getResponse = b
	}
	if raw, ok := l.get(NameUTCOffset); ok {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Valves{}, domain.NewValveError(NameUTCOffset, "not a number")
		}
		if f < -12 || f > 14 {
			return Valves{}, domain.NewValveError(NameUTCOffset, "outside [-12, 14]")
		}
		v.utcOffset = f
	}
	if raw, ok := l.get(NameContextBudget); ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Valves{}, domain.NewValveError(NameContextBudget, "not an integer")
		}
		if n <= 0 {
			return Valves{}, domain.NewValveError(NameContextBudget, "must be positive")
		}
		v.contextBudget = n
	}

	return v, nil
}

// dereference resolves the env-indirection form "env.VAR_NAME" to the
// variable's value. An unset variable leaves the raw value untouched.
func (l layers) dereference(raw string) string {
	if !strings.HasPrefix(raw, envIndirection) {
		return raw
	}
	if v, ok := l.env(strings.TrimPrefix(raw, envIndirection)); ok {
		return v
	}
	return raw
}

func knownName(name string) bool {
	for _, n := range Names() {
		if n == name {
			return true
		}
	}
	return false
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// parseBool accepts the boolean vocabulary used across valve layers.
func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean (want true/false, 1/0, or yes/no)")
}
