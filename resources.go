package rgbworld

// Singleton, SetSingleton and RemoveSingleton are thin wrappers over
// Get/Set/Remove against the WORLD sentinel entity. spec.md §9 deliberately
// models "global singletons" as ordinary components on WORLD rather than
// introducing a second storage mechanism ("This removes the temptation to
// introduce mutable statics or locks") — the teacher's original
// resources.go used a standalone type-keyed Resources map instead; that
// indirection isn't needed once singletons are just components, so these
// wrappers replace it.
func Singleton[T any](w *World) (T, bool) {
	return Get[T](w, WORLD)
}

func SetSingleton[T any](w *World, value T) {
	Set(w, WORLD, value)
}

func RemoveSingleton[T any](w *World) {
	Remove[T](w, WORLD)
}
