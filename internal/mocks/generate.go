// Package mocks provides gomock mocks for the auth ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	users := mocks.NewMockUserStore(ctrl)
//	users.EXPECT().GetByID(gomock.Any(), "u1").Return(user, nil)
//
// Hand-written in-memory doubles live in internal/mocks/auth.
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/target/sessionauth/internal/ports AuthProvider,RoleMapper,SessionStore,UserStore
