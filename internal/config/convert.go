package config

// Credentials maps each registered login to its bcrypt hash.
func (f DirectoryFile) Credentials() map[string][]byte {
	out := make(map[string][]byte, len(f.Users))
	for _, u := range f.Users {
		out[u.Login] = []byte(u.Hash)
	}
	return out
}
