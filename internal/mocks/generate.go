// Package mocks provides gomock implementations of the ports used by talentgate services.
//
// The mocks are generated with go.uber.org/mock (mockgen). To regenerate after
// interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	api := mocks.NewMockAuthAPI(ctrl)
//	api.EXPECT().SwitchRole(gomock.Any(), gomock.Any(), auth.RoleMentor).Return(res, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=auth_api_mock.go github.com/target/talentgate/internal/ports AuthAPI

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=profile_api_mock.go github.com/target/talentgate/internal/ports ProfileAPI

// CacheRepository backs the viewer profile cache.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/target/talentgate/internal/ports CacheRepository
