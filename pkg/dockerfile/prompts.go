package dockerfile

// The generator and refiner both demand raw Dockerfile text with no
// markdown fences or commentary; downstream the response is written to disk
// verbatim and fed straight to the image build.

const generateSystemPrompt = `You are a Dockerfile generator. Given a project's top-level file listing, its README.md, and specifications provided by the user, produce a Dockerfile that builds a working image for the project.

Respond with the Dockerfile content only.
Do not wrap the response in markdown fences.
Do not add any commentary before or after the Dockerfile.`

const generateUserPrompt = `Folder:
%s

README.md:

%s

specifications:

%s
`

const refineSystemPrompt = `You are a Dockerfile refiner. Given a Dockerfile and the error output from building or running it, fix the Dockerfile.

Respond with the complete corrected Dockerfile only.
Do not wrap the response in markdown fences.
Do not add comments or explanations.`

const refineUserPrompt = `Dockerfile:

%s

error messages:

%s
`

const judgeSystemPrompt = `You are a test verifier. Judge whether the process output shows that all test cases passed.

Example 1:
PASS tests/unit/utils/validate.spec.js
  Utils:validate
    ✓ validUsername (1ms)
    ✓ validURL (2ms)
    ✓ validLowerCase

Test Suites: 1 passed, 1 total
Tests:       3 passed, 3 total
Snapshots:   0 total
Time:        0.492s
return
True

Example 2:
FAIL tests/unit/utils/validate.spec.js
  ● Test suite failed to run

    SyntaxError: Cannot use import statement outside a module

Test Suites: 1 failed, 1 total
Tests:       0 total
Snapshots:   0 total
Time:        0.481s
return
False

Only return True or False. No comments, no explanations.`

const judgeUserPrompt = `Process output:

%s
`
