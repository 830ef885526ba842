// Package config loads YAML workflow definitions and turns them into agent
// graphs and model backends.
//
// A workflow file declares one backend, runner limits, agents with their
// instructions, output schemas, handoffs and guardrails, and the entry
// agent:
//
//	backend:
//	  provider: openai
//	  model: gpt-4o-mini
//	  api_key_env: OPENAI_API_KEY
//	entry: Triage
//	agents:
//	  - name: Triage
//	    instructions: Route the question to the right tutor.
//	    handoffs: [Math Tutor]
//	  - name: Math Tutor
//	    description: Specialist agent for math questions
//
// Build creates agents in two passes so handoffs may form cycles.
// NewBackend is the only place that reads the environment.
package config
