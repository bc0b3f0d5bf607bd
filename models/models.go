// Package models holds the canonical records shared by the normalizer, the
// storage backends and the HTTP layer.
//
//   - User: account with a bcrypt password hash
//   - Interview: one practice session and its transcript
//   - Turn: one canonical transcript utterance
//   - Summary: the report written when an interview is finished
//
// Relational schema overview:
//  1. users - user_id primary key, password_hash
//  2. interviews - one row per session; setup, transcript and summary are JSON text columns
package models
