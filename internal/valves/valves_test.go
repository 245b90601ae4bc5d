package valves

import (
	"errors"
	"testing"

	"github.com/chronolens/chronolens/internal/domain"
)

// envFrom builds an environment lookup from a map.
func envFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func noEnv(string) (string, bool) { return "", false }

func TestResolve_CompiledDefaults(t *testing.T) {
	s := NewStoreWithLookup(noEnv)

	v, err := s.Resolve(nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if !v.DockerMode() {
		t.Error("DockerMode() = false, want true")
	}
	if got, want := v.LLMAPIBaseURL(), "http://host.docker.internal:4000/v1"; got != want {
		t.Errorf("LLMAPIBaseURL() = %q, want %q", got, want)
	}
	if got, want := v.IndexURL(), "http://host.docker.internal:3030"; got != want {
		t.Errorf("IndexURL() = %q, want %q", got, want)
	}
	if got, want := v.ToolModel(), "Llama-3.1-70B"; got != want {
		t.Errorf("ToolModel() = %q, want %q", got, want)
	}
	if got, want := v.ResponseModel(), "sambanova-llama-8b"; got != want {
		t.Errorf("ResponseModel() = %q, want %q", got, want)
	}
	if got := v.UTCOffset(); got != -7 {
		t.Errorf("UTCOffset() = %v, want -7", got)
	}
	if v.GetResponse() {
		t.Error("GetResponse() = true, want false")
	}
	if v.ForceToolCalling() {
		t.Error("ForceToolCalling() = true, want false")
	}
	if got := v.ContextBudget(); got != defaultBudget {
		t.Errorf("ContextBudget() = %d, want %d", got, defaultBudget)
	}
}

func TestResolve_DockerModeFlipsURLDefaults(t *testing.T) {
	s := NewStoreWithLookup(noEnv)

	v, err := s.Resolve(map[string]string{NameDockerMode: "false"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if got, want := v.LLMAPIBaseURL(), "http://localhost:4000/v1"; got != want {
		t.Errorf("LLMAPIBaseURL() = %q, want %q", got, want)
	}
	if got, want := v.IndexURL(), "http://localhost:3030"; got != want {
		t.Errorf("IndexURL() = %q, want %q", got, want)
	}
}

func TestResolve_Precedence(t *testing.T) {
	env := envFrom(map[string]string{NameToolModel: "from-env"})

	tests := []struct {
		name      string
		env       func(string) (string, bool)
		file      map[string]string
		overrides map[string]string
		want      string
	}{
		{
			name: "compiled when nothing set",
			env:  noEnv,
			want: "Llama-3.1-70B",
		},
		{
			name: "file beats compiled",
			env:  noEnv,
			file: map[string]string{NameToolModel: "from-file"},
			want: "from-file",
		},
		{
			name: "env beats file",
			env:  env,
			file: map[string]string{NameToolModel: "from-file"},
			want: "from-env",
		},
		{
			name:      "override beats env",
			env:       env,
			file:      map[string]string{NameToolModel: "from-file"},
			overrides: map[string]string{NameToolModel: "from-override"},
			want:      "from-override",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStoreWithLookup(tt.env)
			if tt.file != nil {
				if err := s.SetFileDefaults(tt.file); err != nil {
					t.Fatalf("SetFileDefaults() error = %v", err)
				}
			}

			v, err := s.Resolve(tt.overrides)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got := v.ToolModel(); got != tt.want {
				t.Errorf("ToolModel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolve_BooleanVocabulary(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    bool
		wantErr bool
	}{
		{name: "true", raw: "true", want: true},
		{name: "TRUE", raw: "TRUE", want: true},
		{name: "one", raw: "1", want: true},
		{name: "yes", raw: "yes", want: true},
		{name: "false", raw: "false", want: false},
		{name: "zero", raw: "0", want: false},
		{name: "No", raw: "No", want: false},
		{name: "padded", raw: " true ", want: true},
		{name: "garbage", raw: "enabled", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStoreWithLookup(noEnv)

			v, err := s.Resolve(map[string]string{NameGetResponse: tt.raw})
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidValves) {
					t.Fatalf("Resolve() error = %v, want ErrInvalidValves", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got := v.GetResponse(); got != tt.want {
				t.Errorf("GetResponse() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolve_URLValidation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "http", raw: "http://localhost:3030"},
		{name: "https", raw: "https://index.example.com"},
		{name: "trailing slash trimmed", raw: "http://localhost:3030/"},
		{name: "missing scheme", raw: "localhost:3030", wantErr: true},
		{name: "bad scheme", raw: "ftp://localhost", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStoreWithLookup(noEnv)

			v, err := s.Resolve(map[string]string{NameIndexURL: tt.raw})
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidValves) {
					t.Fatalf("Resolve() error = %v, want ErrInvalidValves", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got := v.IndexURL(); got != "http://localhost:3030" && got != "https://index.example.com" {
				t.Errorf("IndexURL() = %q", got)
			}
		})
	}
}

func TestResolve_EnvIndirection(t *testing.T) {
	env := envFrom(map[string]string{"SECRET_KEY": "sk-live-123"})

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "dereferenced", raw: "env.SECRET_KEY", want: "sk-live-123"},
		{name: "unset variable keeps raw", raw: "env.MISSING_KEY", want: "env.MISSING_KEY"},
		{name: "literal passes through", raw: "sk-literal", want: "sk-literal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStoreWithLookup(env)

			v, err := s.Resolve(map[string]string{NameLLMAPIKey: tt.raw})
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got := v.LLMAPIKey(); got != tt.want {
				t.Errorf("LLMAPIKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolve_UTCOffset(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    float64
		wantErr bool
	}{
		{name: "negative", raw: "-7", want: -7},
		{name: "fractional", raw: "5.5", want: 5.5},
		{name: "zero", raw: "0", want: 0},
		{name: "not a number", raw: "PST", wantErr: true},
		{name: "out of range", raw: "20", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStoreWithLookup(noEnv)

			v, err := s.Resolve(map[string]string{NameUTCOffset: tt.raw})
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidValves) {
					t.Fatalf("Resolve() error = %v, want ErrInvalidValves", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got := v.UTCOffset(); got != tt.want {
				t.Errorf("UTCOffset() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolve_UnknownOverrideRejected(t *testing.T) {
	s := NewStoreWithLookup(noEnv)

	_, err := s.Resolve(map[string]string{"NOT_A_VALVE": "x"})
	if !errors.Is(err, domain.ErrInvalidValves) {
		t.Fatalf("Resolve() error = %v, want ErrInvalidValves", err)
	}

	var verr *domain.ValveError
	if !errors.As(err, &verr) {
		t.Fatalf("error not a ValveError: %v", err)
	}
	if verr.Name != "NOT_A_VALVE" {
		t.Errorf("ValveError.Name = %q, want NOT_A_VALVE", verr.Name)
	}
}

func TestResolve_ContextBudget(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{name: "valid", raw: "4000", want: 4000},
		{name: "zero rejected", raw: "0", wantErr: true},
		{name: "negative rejected", raw: "-1", wantErr: true},
		{name: "not an integer", raw: "lots", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStoreWithLookup(noEnv)

			v, err := s.Resolve(map[string]string{NameContextBudget: tt.raw})
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidValves) {
					t.Fatalf("Resolve() error = %v, want ErrInvalidValves", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got := v.ContextBudget(); got != tt.want {
				t.Errorf("ContextBudget() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSnapshot_RedactsAPIKey(t *testing.T) {
	s := NewStoreWithLookup(noEnv)

	v, err := s.Resolve(map[string]string{NameLLMAPIKey: "sk-live-123"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	snap := v.Snapshot()
	if got := snap[NameLLMAPIKey]; got != "********" {
		t.Errorf("snapshot key = %q, want redacted", got)
	}
	if got := snap[NameToolModel]; got != "Llama-3.1-70B" {
		t.Errorf("snapshot tool model = %q", got)
	}
	if len(snap) != len(Names()) {
		t.Errorf("snapshot has %d entries, want %d", len(snap), len(Names()))
	}
}
