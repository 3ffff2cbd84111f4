// Package testing provides a conformance suite for store.IStore implementations.
//
// Every backend runs the same tests against a fresh store:
//
//	func TestConformance(t *testing.T) {
//		storetesting.RunStoreTests(t, "RedisStore", func(t *testing.T) store.IStore {
//			mr := miniredis.RunT(t)
//			return redistore.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), redistore.Options{})
//		})
//	}
package testing
