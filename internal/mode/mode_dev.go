//go:build !production

package mode

const current = Development
