// Package rewrite moves a module's imports from a stale platform to the
// target platform.
//
// Rewrite removes the stale references named by the platform map and,
// when it removed any, appends the target references and repoints every
// import the target platform exports. Names starting with "__" belong to
// the dynamic-linking ABI and keep their namespace.
package rewrite
