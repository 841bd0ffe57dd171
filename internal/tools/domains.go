package tools

// Domain describes one roast tool: what it critiques and how the agents
// are briefed.
type Domain struct {
	Tool        string
	Kind        string
	Description string
	// Param is the argument holding the subject of the critique.
	Param     string
	ParamDesc string
	// IsPath marks domains whose subject is a file system path the agents
	// read from.
	IsPath bool
	System string
	// Task is a format string receiving the subject.
	Task string
}

const brutalistPreamble = "You are a brutally honest senior reviewer. Your job is to find what is wrong, " +
	"not to reassure. Be specific, cite concrete evidence, rank problems by severity, and skip praise " +
	"unless it is needed to explain a flaw. Never modify files; you only read and report."

// Domains lists every roast tool in registration order.
var Domains = []Domain{
	{
		Tool:        "roast_codebase",
		Kind:        "codebase",
		Description: "Have the available CLI agents tear apart a codebase: correctness bugs, design rot, security holes, performance traps and maintainability debt.",
		Param:       "targetPath",
		ParamDesc:   "Directory or file to analyze",
		IsPath:      true,
		System:      brutalistPreamble + " Focus on the code itself: bugs, race conditions, error handling, coupling, dead code and anything that will page someone at 3am.",
		Task:        "Review the codebase at %s. Read the source before judging it.",
	},
	{
		Tool:        "roast_file_structure",
		Kind:        "file_structure",
		Description: "Critique a project's directory layout, module boundaries and naming.",
		Param:       "targetPath",
		ParamDesc:   "Project root to analyze",
		IsPath:      true,
		System:      brutalistPreamble + " Focus on organization: package boundaries, naming, misplaced files, circular structure and what a newcomer will trip over.",
		Task:        "Critique the file and directory structure under %s.",
	},
	{
		Tool:        "roast_dependencies",
		Kind:        "dependencies",
		Description: "Audit a project's dependencies: outdated or abandoned packages, version conflicts, bloat and supply-chain risk.",
		Param:       "targetPath",
		ParamDesc:   "Project root containing the dependency manifests",
		IsPath:      true,
		System:      brutalistPreamble + " Focus on dependencies: stale or unmaintained packages, duplicate functionality, pinning problems, licenses and supply-chain exposure.",
		Task:        "Audit the dependencies of the project at %s. Inspect every manifest and lock file you find.",
	},
	{
		Tool:        "roast_test_coverage",
		Kind:        "test_coverage",
		Description: "Expose what a test suite fails to test: missing cases, brittle assertions, mocks that hide bugs.",
		Param:       "targetPath",
		ParamDesc:   "Project root or test directory",
		IsPath:      true,
		System:      brutalistPreamble + " Focus on tests: untested paths, assertions that prove nothing, flaky timing, over-mocking and tests that would pass on broken code.",
		Task:        "Evaluate the test suite of the project at %s. Do not run anything that writes to disk.",
	},
	{
		Tool:        "roast_idea",
		Kind:        "idea",
		Description: "Stress-test an idea, product or plan before anyone builds it.",
		Param:       "idea",
		ParamDesc:   "The idea to critique",
		System:      brutalistPreamble + " Focus on viability: hidden assumptions, market reality, execution risk, cost and the reasons similar attempts failed.",
		Task:        "Critique this idea:\n\n%s",
	},
	{
		Tool:        "roast_architecture",
		Kind:        "architecture",
		Description: "Attack a system architecture: scaling limits, single points of failure, consistency gaps and operational cost.",
		Param:       "architecture",
		ParamDesc:   "Description of the architecture",
		System:      brutalistPreamble + " Focus on architecture: failure modes, scaling cliffs, data consistency, operational burden and cost at 10x load.",
		Task:        "Critique this architecture:\n\n%s",
	},
	{
		Tool:        "roast_security",
		Kind:        "security",
		Description: "Threat-model a system the way an attacker would.",
		Param:       "system",
		ParamDesc:   "Description of the system, its trust boundaries and data",
		System:      brutalistPreamble + " Think like an attacker: authentication and authorization gaps, injection, secrets handling, trust boundaries and abuse paths. Describe impact, not exploit code.",
		Task:        "Threat-model this system:\n\n%s",
	},
}

// DomainByTool returns the domain registered under tool.
func DomainByTool(tool string) (Domain, bool) {
	for _, d := range Domains {
		if d.Tool == tool {
			return d, true
		}
	}
	return Domain{}, false
}
