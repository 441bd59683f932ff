package policyfile

// documentSchema structurally validates a policy document before decoding.
// Semantic checks (known capability names, trust levels, durations) happen
// after decode, where the errors can be more specific.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "integer", "const": 1},
    "host_version": {"type": "string"},
    "trust": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "policies": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "min_trust": {"type": "string"},
          "auto_grant": {"type": "array", "items": {"type": "string"}},
          "always_deny": {"type": "array", "items": {"type": "string"}},
          "require_approval": {"type": "array", "items": {"type": "string"}},
          "when": {"type": "string"}
        }
      }
    },
    "sandbox": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "max_memory": {"type": "integer", "minimum": 0},
        "max_table_elements": {"type": "integer", "minimum": 0},
        "max_execution_time": {"type": "string"},
        "max_fuel": {"type": "integer", "minimum": 0},
        "allow_threads": {"type": "boolean"},
        "allow_simd": {"type": "boolean"},
        "trust_level": {"type": "string"},
        "allowed_imports": {"type": "array", "items": {"type": "string"}},
        "allowed_exports": {"type": "array", "items": {"type": "string"}}
      }
    }
  }
}`
