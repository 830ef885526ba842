// Package model defines the provider agnostic contract between the runner
// and a language model backend, plus helpers shared by every adapter.
//
// Core goals:
//   - One blocking Generate call per agent turn, cancellable via context
//   - Normalized handoff representation (HandoffOption rendered as transfer tools)
//   - Structured output requests carried as a *schema.Schema
//   - Caller level policies (retry, rate limiting) as Model decorators
//   - Lightweight scripting for tests (MockModel)
//
// Providers (OpenAI, Anthropic, Bedrock, Gemini) implement Model in sub
// packages so the runner remains decoupled from vendor SDKs.
package model
