package mocks

//go:generate mockery --name Querier --srcpkg github.com/aevon-lab/attribution-rollup/internal/analytics --output ./analytics --outpkg analyticsmocks --with-expecter
