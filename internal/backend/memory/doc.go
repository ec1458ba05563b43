// Package memory is an in-process backend. It keeps users in memory with
// bcrypt password hashes, signs HS256 ID tokens for signed-in users, and
// lets callers push change events to watchers with Emit.
//
//	be := memory.New(memory.WithSigningKey(key))
//	db, _ := be.Connect(ctx, backend.Config{Name: "local"})
//	db.(*memory.DB).Emit(ev)
package memory
