package integrations_test

import (
	"fmt"

	"github.com/matzehuels/crateindex/pkg/integrations"
)

func ExampleNormalizeRepoURL() {
	// crates.io repository fields come in several spellings
	for _, raw := range []string{
		"git@github.com:serde-rs/serde.git",
		"git+https://github.com/serde-rs/serde",
		"https://github.com/serde-rs/serde.git",
	} {
		fmt.Println(integrations.NormalizeRepoURL(raw))
	}
	// Output:
	// https://github.com/serde-rs/serde
	// https://github.com/serde-rs/serde
	// https://github.com/serde-rs/serde
}
