package ports

// Clock es la fuente de tiempo inyectada: unix seconds.
type Clock interface {
	Now() int64
}
