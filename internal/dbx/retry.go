package dbx

import "context"

// Retry calls fn up to attempts times, stopping at the first success, at the
// first error for which retryable returns false, or when ctx is done.
// The last error is returned.
func Retry(ctx context.Context, attempts int, retryable func(error) bool, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if cerr := ctx.Err(); cerr != nil {
			if err != nil {
				return err
			}
			return cerr
		}
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
	}
	return err
}
