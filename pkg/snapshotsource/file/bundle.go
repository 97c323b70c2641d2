package file

import (
	"bytes"
	"fmt"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	ghodssyaml "github.com/ghodss/yaml"
	jsonpatch "gomodules.xyz/jsonpatch/v2"
	"github.com/xeipuuv/gojsonschema"
	"google.golang.org/protobuf/types/known/structpb"
	sigsyaml "sigs.k8s.io/yaml"
	yamlv3 "gopkg.in/yaml.v3"

	clog "github.com/xds-controlplane/control-plane/pkg/log"
	"github.com/xds-controlplane/control-plane/pkg/xds/cache"
)

// lastInstalledJSON remembers the last successfully installed bundle's
// normalized JSON per group, so a later InstallBundle call can log the
// number of JSON Patch operations (D3) between the previous and the new
// document. Advisory only: never consulted to decide whether to accept
// an update.
var (
	lastInstalledMu   sync.Mutex
	lastInstalledJSON = map[string][]byte{}
)

func logMergePatch(group string, newJSON []byte) {
	lastInstalledMu.Lock()
	prev, had := lastInstalledJSON[group]
	lastInstalledJSON[group] = newJSON
	lastInstalledMu.Unlock()

	if !had || !clog.Source.DebugEnabled() {
		return
	}
	patch, err := jsonpatch.CreatePatch(prev, newJSON)
	if err != nil {
		clog.Source.Debugf("computing merge patch for group %s: %v", group, err)
		return
	}
	clog.Source.Debugf("group %s bundle changed: %d patch operations", group, len(patch))
}

// InstallBundle renders, validates, converts, and installs raw (a
// bundle document's bytes) as group's snapshot in c. It is the shared
// conversion path used by both the directory watcher in this package
// and the ConfigMap-backed snapshotsource/kube collaborator, since both
// sources speak the same bundle document shape.
func InstallBundle(c cache.SnapshotCache, group string, raw []byte) error {
	rendered, err := renderTemplate(raw)
	if err != nil {
		return fmt.Errorf("rendering bundle: %w", err)
	}

	// Round-trip through sigs.k8s.io/yaml to normalize the rendered
	// document (YAML 1.1 quirks, tabs) before the stricter yaml.v3
	// decode in parseBundle.
	asJSON, err := sigsyaml.YAMLToJSON(rendered)
	if err != nil {
		return fmt.Errorf("normalizing bundle: %w", err)
	}
	normalized, err := sigsyaml.JSONToYAML(asJSON)
	if err != nil {
		return fmt.Errorf("normalizing bundle: %w", err)
	}

	b, err := parseBundle(normalized)
	if err != nil {
		return fmt.Errorf("validating bundle: %w", err)
	}

	converted, err := b.toResources()
	if err != nil {
		return fmt.Errorf("converting bundle: %w", err)
	}

	versions := make(map[string]string, len(converted))
	resources := make(map[string]map[string]cache.Resource, len(converted))
	for typeURL, byName := range converted {
		versions[typeURL] = b.Version
		resources[typeURL] = make(map[string]cache.Resource, len(byName))
		for name, se := range byName {
			if se.err != nil {
				return fmt.Errorf("resource %s/%s: %w", typeURL, name, se.err)
			}
			resources[typeURL][name] = se.value
		}
	}

	snapshot, err := cache.NewSnapshot(versions, resources)
	if err != nil {
		return fmt.Errorf("building snapshot: %w", err)
	}

	if err := c.SetSnapshot(group, snapshot); err != nil {
		return err
	}

	logMergePatch(group, asJSON)
	return nil
}

// renderTemplate passes raw through text/template with the Sprig
// function map, so bundle authors can use Sprig helpers (env, default,
// etc.) for operator-friendly substitution before the result is parsed
// as YAML.
func renderTemplate(raw []byte) ([]byte, error) {
	tmpl, err := template.New("bundle").Funcs(sprig.TxtFuncMap()).Parse(string(raw))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// bundle is the on-disk shape of one node group's resource file: a map
// from type URL to a map from resource name to an arbitrary resource
// body. Bodies are decoded into structpb.Struct so they can flow
// through the cache as ordinary proto.Message values without this
// package needing to know any concrete Envoy resource schema — actual
// resource shape validation is the operator's responsibility (Non-goal:
// snapshot content correctness).
type bundle struct {
	Version   string                            `yaml:"version"`
	Resources map[string]map[string]interface{} `yaml:"resources"`
}

// bundleSchema is the structural schema every bundle file must satisfy
// before it is accepted: a version string and a resources map. This is
// intentionally loose about resource body shape (see bundle's doc
// comment) and only guards against a malformed top-level file.
const bundleSchema = `{
  "type": "object",
  "required": ["version", "resources"],
  "properties": {
    "version": {"type": "string", "minLength": 1},
    "resources": {"type": "object"}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(bundleSchema)

// parseBundle decodes and validates raw YAML bytes into a bundle.
func parseBundle(raw []byte) (*bundle, error) {
	var b bundle
	if err := yamlv3.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decoding bundle yaml: %w", err)
	}

	// Round-trip through JSON (via ghodss/yaml, which re-keys YAML's
	// map[interface{}]interface{} into JSON-friendly map[string]interface{})
	// so gojsonschema can validate the document structurally.
	asJSON, err := ghodssyaml.YAMLToJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("converting bundle to JSON for validation: %w", err)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(asJSON))
	if err != nil {
		return nil, fmt.Errorf("validating bundle: %w", err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("bundle failed schema validation: %v", result.Errors())
	}

	return &b, nil
}

// toResources converts a bundle's decoded YAML bodies into
// structpb.Struct payloads keyed by type URL and name, matching the
// cache's map[string]map[string]Resource shape.
func (b *bundle) toResources() (map[string]map[string]structOrErr, error) {
	out := make(map[string]map[string]structOrErr, len(b.Resources))
	for typeURL, byName := range b.Resources {
		out[typeURL] = make(map[string]structOrErr, len(byName))
		for name, body := range byName {
			m, ok := body.(map[string]interface{})
			if !ok {
				out[typeURL][name] = structOrErr{err: fmt.Errorf("resource %s/%s: body must be a map", typeURL, name)}
				continue
			}
			s, err := structpb.NewStruct(m)
			out[typeURL][name] = structOrErr{value: s, err: err}
		}
	}
	return out, nil
}

type structOrErr struct {
	value *structpb.Struct
	err   error
}
